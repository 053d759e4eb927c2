package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/dwarfdata/expr"
)

type fakeRegs map[int]struct {
	value uint64
	name  string
}

func (f fakeRegs) DWARFRegister(n int) (uint64, string, bool) {
	r, ok := f[n]
	if !ok {
		return 0, "", false
	}
	return r.value, r.name, true
}

type fakeMemory map[addr.Address]addr.Word

func (f fakeMemory) ReadWord(a addr.Address) (addr.Word, error) {
	w, ok := f[a]
	if !ok {
		return 0, cmerr.New(cmerr.MemoryRead, "no fake memory at %s", a)
	}
	return w, nil
}

func TestEvaluateLiteralIsMemoryAddress(t *testing.T) {
	// DW_OP_lit5 -> address 5
	place, err := expr.Evaluate([]byte{0x30 + 5}, expr.Context{})
	require.NoError(t, err)
	require.Equal(t, expr.PlaceMemory, place.Kind)
	require.Equal(t, addr.Address(5), place.Address)
}

func TestEvaluateRegN(t *testing.T) {
	regs := fakeRegs{0: {value: 0x7fff0000, name: "rax"}}
	// DW_OP_reg0
	place, err := expr.Evaluate([]byte{0x50}, expr.Context{Regs: regs})
	require.NoError(t, err)
	require.Equal(t, expr.PlaceRegister, place.Kind)
	require.Equal(t, "rax", place.Register)
}

func TestEvaluateFbreg(t *testing.T) {
	ctx := expr.Context{
		FrameBase: func() (addr.Address, error) { return addr.Address(0x7ffeefff0000), nil },
	}
	// DW_OP_fbreg -8  (sleb128 of -8 is 0x78)
	place, err := expr.Evaluate([]byte{0x91, 0x78}, ctx)
	require.NoError(t, err)
	require.Equal(t, expr.PlaceMemory, place.Kind)
	require.Equal(t, addr.Address(0x7ffeefff0000-8), place.Address)
}

func TestEvaluateFbregWithoutResolverFails(t *testing.T) {
	_, err := expr.Evaluate([]byte{0x91, 0x00}, expr.Context{})
	require.Error(t, err)
	require.Equal(t, cmerr.FrameBaseMissing, cmerr.KindOf(err))
}

func TestEvaluatePlusAndPlusUconst(t *testing.T) {
	// lit3 lit4 plus -> 7, as a memory address
	place, err := expr.Evaluate([]byte{0x30 + 3, 0x30 + 4, 0x22}, expr.Context{})
	require.NoError(t, err)
	require.Equal(t, addr.Address(7), place.Address)

	// lit10 plus_uconst 5 -> 15
	place, err = expr.Evaluate([]byte{0x30 + 10, 0x23, 0x05}, expr.Context{})
	require.NoError(t, err)
	require.Equal(t, addr.Address(15), place.Address)
}

func TestEvaluateDeref(t *testing.T) {
	mem := fakeMemory{addr.Address(0x2000): addr.Word(0xdeadbeef)}
	// DW_OP_addr 0x2000, DW_OP_deref
	expression := []byte{0x03, 0x00, 0x20, 0, 0, 0, 0, 0, 0, 0x06}
	place, err := expr.Evaluate(expression, expr.Context{Mem: mem})
	require.NoError(t, err)
	require.Equal(t, expr.PlaceMemory, place.Kind)
	require.Equal(t, addr.Address(0xdeadbeef), place.Address)
}

func TestEvaluateStackValueIsConstant(t *testing.T) {
	// lit9, stack_value -> constant 9
	place, err := expr.Evaluate([]byte{0x30 + 9, 0x9f}, expr.Context{})
	require.NoError(t, err)
	require.Equal(t, expr.PlaceConstant, place.Kind)
	require.Len(t, place.Constant, 8)
	require.Equal(t, uint64(9), uint64(addr.WordFromBytes(place.Constant)))
}

func TestEvaluateCallFrameCFA(t *testing.T) {
	ctx := expr.Context{CFA: func() (addr.Address, error) { return addr.Address(0x1000), nil }}
	place, err := expr.Evaluate([]byte{0x9c}, ctx)
	require.NoError(t, err)
	require.Equal(t, expr.PlaceMemory, place.Kind)
	require.Equal(t, addr.Address(0x1000), place.Address)
}

func TestEvaluateEmptyExpressionFails(t *testing.T) {
	_, err := expr.Evaluate(nil, expr.Context{})
	require.Error(t, err)
	require.Equal(t, cmerr.UnsupportedOpcode, cmerr.KindOf(err))
}

func TestEvaluateUnknownOpcodeFails(t *testing.T) {
	_, err := expr.Evaluate([]byte{0xff}, expr.Context{})
	require.Error(t, err)
	require.Equal(t, cmerr.UnsupportedOpcode, cmerr.KindOf(err))
}

func TestEvaluateEmptyStackFails(t *testing.T) {
	// DW_OP_plus with nothing pushed
	_, err := expr.Evaluate([]byte{0x22}, expr.Context{})
	require.Error(t, err)
	require.Equal(t, cmerr.EmptyStack, cmerr.KindOf(err))
}
