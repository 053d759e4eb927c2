package breakpoint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/breakpoint"
)

// fakeMemory is a flat byte array addressable in 8-byte words, standing in
// for a tracee's text segment reachable via PTRACE_PEEKTEXT/POKETEXT.
type fakeMemory struct {
	base addr.Address
	mem  []byte
}

func newFakeMemory(base addr.Address, size int) *fakeMemory {
	return &fakeMemory{base: base, mem: make([]byte, size)}
}

func (f *fakeMemory) PeekWord(a addr.Address) (addr.Word, error) {
	off := int(a.Diff(f.base))
	return addr.WordFromBytes(f.mem[off : off+8]), nil
}

func (f *fakeMemory) PokeWord(a addr.Address, w addr.Word) error {
	off := int(a.Diff(f.base))
	b := w.Bytes()
	copy(f.mem[off:off+8], b[:])
	return nil
}

// fakeTracee is a minimal breakpoint.Tracee that just moves a PC forward by
// one byte on every single step, as if it executed a one-byte instruction.
type fakeTracee struct {
	pc addr.Address
}

func (f *fakeTracee) PC() (addr.Address, error)        { return f.pc, nil }
func (f *fakeTracee) SetPC(a addr.Address) error        { f.pc = a; return nil }
func (f *fakeTracee) SingleStepAndWait() error          { f.pc = f.pc.Add(1); return nil }

func TestSetPatchesInt3AndSavesByte(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	mem.mem[0] = 0x90 // nop

	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))

	require.True(t, tbl.IsAt(addr.Address(0x1000)))
	require.Equal(t, byte(0xCC), mem.mem[0])

	orig, ok := tbl.OriginalByte(addr.Address(0x1000))
	require.True(t, ok)
	require.Equal(t, byte(0x90), orig)
}

func TestSetTwiceFails(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))
	require.Error(t, tbl.Set(addr.Address(0x1000)))
}

func TestRemoveRestoresByte(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	mem.mem[0] = 0x55 // push rbp

	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))
	require.NoError(t, tbl.Remove(addr.Address(0x1000)))

	require.Equal(t, byte(0x55), mem.mem[0])
	require.False(t, tbl.IsAt(addr.Address(0x1000)))
}

func TestRemoveMissingFails(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	tbl := breakpoint.NewTable(mem)
	require.Error(t, tbl.Remove(addr.Address(0x1000)))
}

func TestReadMemoryTransparentHidesPatch(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	copy(mem.mem, []byte{0xb8, 0x00, 0x00, 0x00, 0x00, 0xc3, 0x90, 0x90})

	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))
	require.Equal(t, byte(0xCC), mem.mem[0])

	out, err := tbl.ReadMemoryTransparent(mem, addr.Address(0x1000), 6)
	require.NoError(t, err)
	require.Equal(t, []byte{0xb8, 0x00, 0x00, 0x00, 0x00, 0xc3}, out)
}

func TestStepOverBreakpointRestoresAfterStep(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	mem.mem[0] = 0x90

	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))
	require.Equal(t, byte(0xCC), mem.mem[0])

	tr := &fakeTracee{pc: addr.Address(0x1000)}
	require.NoError(t, tbl.StepOverBreakpoint(tr))

	require.Equal(t, addr.Address(0x1001), tr.pc)
	require.Equal(t, byte(0xCC), mem.mem[0], "breakpoint must be re-armed after stepping past it")

	bp, ok := tbl.Get(addr.Address(0x1000))
	require.True(t, ok)
	require.True(t, bp.Enabled)
}

func TestStepOverBreakpointNoopWhenNoneAtPC(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 16)
	tbl := breakpoint.NewTable(mem)

	tr := &fakeTracee{pc: addr.Address(0x1000)}
	require.NoError(t, tbl.StepOverBreakpoint(tr))
	require.Equal(t, addr.Address(0x1000), tr.pc, "no breakpoint at PC means no step taken")
}

func TestDisableAllRestoresEveryByte(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 24)
	mem.mem[0] = 0x90
	mem.mem[8] = 0x55

	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1000)))
	require.NoError(t, tbl.Set(addr.Address(0x1008)))

	tbl.DisableAll()

	require.Equal(t, byte(0x90), mem.mem[0])
	require.Equal(t, byte(0x55), mem.mem[8])

	for _, bp := range tbl.List() {
		require.False(t, bp.Enabled)
	}
}

func TestListIsSortedByAddress(t *testing.T) {
	mem := newFakeMemory(addr.Address(0x1000), 24)
	tbl := breakpoint.NewTable(mem)
	require.NoError(t, tbl.Set(addr.Address(0x1008)))
	require.NoError(t, tbl.Set(addr.Address(0x1000)))

	list := tbl.List()
	require.Len(t, list, 2)
	require.Equal(t, addr.Address(0x1000), list[0].Address)
	require.Equal(t, addr.Address(0x1008), list[1].Address)
}
