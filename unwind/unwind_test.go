package unwind_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/registers"
	"github.com/TalpaLabs/coreminer/unwind"
)

// buildDebugFrame assembles one CIE and one FDE for a textbook
// push-rbp/mov-rbp,rsp prologue:
//
//	0x1000: push %rbp          cfa = rsp+8  (unchanged from CIE)
//	0x1001: (rsp -= 8)         cfa = rsp+16, rbp saved at cfa-16
//	0x1004: mov %rsp, %rbp     cfa = rbp+16
//
// covering the range [0x1000, 0x1100).
func buildDebugFrame(t *testing.T) []byte {
	t.Helper()

	cieContent := []byte{}
	cieContent = append(cieContent, 0xff, 0xff, 0xff, 0xff) // CIE id
	cieContent = append(cieContent, 0x01)                   // version
	cieContent = append(cieContent, 0x00)                    // augmentation ""
	cieContent = append(cieContent, 0x01)                    // code_alignment_factor = 1
	cieContent = append(cieContent, 0x78)                    // data_alignment_factor = -8 (sleb128)
	cieContent = append(cieContent, 0x10)                    // return_address_register = 16 (version 1: ubyte)
	cieContent = append(cieContent,
		0x0c, 0x07, 0x08, // DW_CFA_def_cfa(rsp=7, 8)
		0x90, 0x01, // DW_CFA_offset(16, 1) -> retaddr at cfa-8
	)

	cie := make([]byte, 4+len(cieContent))
	binary.LittleEndian.PutUint32(cie, uint32(len(cieContent)))
	copy(cie[4:], cieContent)

	fdeContent := []byte{}
	fdeContent = append(fdeContent, 0x00, 0x00, 0x00, 0x00) // cie_pointer -> offset 0
	locBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(locBuf, 0x1000)
	fdeContent = append(fdeContent, locBuf...)
	rangeBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(rangeBuf, 0x100)
	fdeContent = append(fdeContent, rangeBuf...)
	fdeContent = append(fdeContent,
		0x41,             // DW_CFA_advance_loc(1) -> loc 0x1001
		0x0e, 0x10,       // DW_CFA_def_cfa_offset(16)
		0x86, 0x02,       // DW_CFA_offset(6, 2) -> rbp saved at cfa-16
		0x43,             // DW_CFA_advance_loc(3) -> loc 0x1004
		0x0d, 0x06,       // DW_CFA_def_cfa_register(6)
	)

	fde := make([]byte, 4+len(fdeContent))
	binary.LittleEndian.PutUint32(fde, uint32(len(fdeContent)))
	copy(fde[4:], fdeContent)

	return append(cie, fde...)
}

type fakeMemory map[addr.Address]addr.Word

func (f fakeMemory) ReadWord(a addr.Address) (addr.Word, error) {
	return f[a], nil
}

func TestBacktraceFollowsCFIFrame(t *testing.T) {
	section := buildDebugFrame(t)
	u, err := unwind.New(section)
	require.NoError(t, err)

	const rbp = addr.Address(0x7ffe2050)
	const cfa = rbp + 16
	const retAddrLoc = cfa - 8
	const savedRbpLoc = cfa - 16 // always equal to rbp itself for this layout

	mem := fakeMemory{
		retAddrLoc: addr.Word(0x9999), // outside CFI coverage: next frame falls back and stops
		savedRbpLoc: addr.Word(0),
	}

	regs := &registers.Snapshot{Rip: 0x1005, Rbp: uint64(rbp)}

	frames, err := u.Backtrace(regs, mem, nil, addr.Address(0))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 1)
	require.Equal(t, addr.Address(0x1005), frames[0].PC)
	require.Equal(t, "<unknown>", frames[0].Function)

	require.Len(t, frames, 2)
	require.Equal(t, addr.Address(0x9999), frames[1].PC)
}

func TestBacktraceFallsBackToFramePointerOutsideCFI(t *testing.T) {
	section := buildDebugFrame(t)
	u, err := unwind.New(section)
	require.NoError(t, err)

	const rbp = addr.Address(0x8000)
	mem := fakeMemory{
		rbp:     addr.Word(0), // saved rbp (chain ends)
		rbp + 8: addr.Word(0x4242),
	}

	// PC 0x2000 is outside the one FDE's [0x1000,0x1100) range, so this
	// exercises the frame-pointer fallback from the first frame.
	regs := &registers.Snapshot{Rip: 0x2000, Rbp: uint64(rbp)}

	frames, err := u.Backtrace(regs, mem, nil, addr.Address(0))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, addr.Address(0x4242), frames[1].PC)
}

func TestNewRejectsTruncatedSection(t *testing.T) {
	_, err := unwind.New([]byte{0x10, 0x00, 0x00, 0x00})
	require.Error(t, err)
}

func TestNewAcceptsEmptySection(t *testing.T) {
	u, err := unwind.New(nil)
	require.NoError(t, err)
	require.NotNil(t, u)
}
