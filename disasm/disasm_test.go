package disasm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/disasm"
)

// mov eax, 0; ret  -> b8 00 00 00 00 c3
var sample = []byte{0xb8, 0x00, 0x00, 0x00, 0x00, 0xc3}

func TestDisassembleLiteral(t *testing.T) {
	lines, err := disasm.Disassemble(sample, addr.Address(0x1000), 2, true, disasm.NoBreakpoints)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, addr.Address(0x1000), lines[0].Address)
	require.False(t, lines[0].IsBreakpoint)
	require.Equal(t, addr.Address(0x1005), lines[1].Address)
}

type fakeBreakpoints struct {
	addr   addr.Address
	orig   byte
	exists bool
}

func (f fakeBreakpoints) OriginalByte(a addr.Address) (byte, bool) {
	if f.exists && a == f.addr {
		return f.orig, true
	}
	return 0, false
}

func TestDisassembleCookedHidesInt3(t *testing.T) {
	patched := append([]byte(nil), sample...)
	origByte := patched[0]
	patched[0] = disasm.Int3

	bp := fakeBreakpoints{addr: addr.Address(0x1000), orig: origByte, exists: true}

	lines, err := disasm.Disassemble(patched, addr.Address(0x1000), 2, false, bp)
	require.NoError(t, err)
	require.True(t, lines[0].IsBreakpoint)
	require.Equal(t, origByte, lines[0].Bytes[0])
	require.NotEqual(t, byte(disasm.Int3), lines[0].Bytes[0])
}

func TestDisassembleLiteralShowsRawInt3(t *testing.T) {
	patched := append([]byte(nil), sample...)
	patched[0] = disasm.Int3

	bp := fakeBreakpoints{addr: addr.Address(0x1000), orig: sample[0], exists: true}

	lines, err := disasm.Disassemble(patched, addr.Address(0x1000), 1, true, bp)
	require.NoError(t, err)
	require.False(t, lines[0].IsBreakpoint)
	require.Equal(t, byte(disasm.Int3), lines[0].Bytes[0])
}
