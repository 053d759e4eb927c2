package dwarfdata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
)

func TestDemangleItaniumSimpleFunction(t *testing.T) {
	// The canonical Itanium ABI example: void f() with no arguments.
	require.Equal(t, "f()", demangle("_Z1fv"))
}

func TestDemangleNonMangledLeftUnchanged(t *testing.T) {
	require.Equal(t, "main", demangle("main"))
}

func TestDemangleEmptyLeftUnchanged(t *testing.T) {
	require.Equal(t, "", demangle(""))
}

func TestUleb128(t *testing.T) {
	v, n := uleb128([]byte{0xe5, 0x8e, 0x26})
	require.Equal(t, uint64(624485), v)
	require.Equal(t, 3, n)
}

// buildFakeTree assembles a tiny hand-wired tree mimicking one compile unit
// containing a subprogram "main" (link-time range [0x1000, 0x1010)) with a
// nested lexical block [0x1004, 0x1008), without going through a real ELF
// file — exercising ByPC/ByName/ByOffset/TypeOf against known structure.
func buildFakeTree() *Tree {
	intType := &Symbol{Kind: KindBaseType, Name: "int", Offset: 1, HasByteSize: true, ByteSize: 4}

	block := &Symbol{Kind: KindLexicalBlock, Offset: 4, HasPC: true, LowPC: 0x1004, HighPC: 0x1008}

	variable := &Symbol{
		Kind: KindVariable, Name: "x", Offset: 3,
		HasType: true, TypeOffset: 1,
		Location: []byte{0x91, 0x00}, // DW_OP_fbreg 0
	}
	block.Children = append(block.Children, variable)
	variable.parent = block

	sub := &Symbol{
		Kind: KindSubprogram, Name: "main", Offset: 2,
		HasPC: true, LowPC: 0x1000, HighPC: 0x1010,
		FrameBase: []byte{0x9c}, // DW_OP_call_frame_cfa
	}
	sub.Children = append(sub.Children, block)
	block.parent = sub

	cu := &Symbol{Kind: KindCompileUnit, Offset: 0}
	cu.Children = append(cu.Children, sub)
	sub.parent = cu

	byOffset := map[Offset]*Symbol{
		0: cu, 1: intType, 2: sub, 3: variable, 4: block,
	}
	byName := map[string][]*Symbol{
		"main": {sub},
		"x":    {variable},
		"int":  {intType},
	}

	return &Tree{
		units:          []*Symbol{cu},
		byName:         byName,
		byOffset:       byOffset,
		firstLoadVaddr: 0x1000,
		hasLoadVaddr:   true,
	}
}

func TestByPCResolvesThroughLexicalBlockToSubprogram(t *testing.T) {
	tr := buildFakeTree()

	sym, ok := tr.ByPC(addr.Address(0x1006), 0)
	require.True(t, ok)
	require.Equal(t, KindSubprogram, sym.Kind)
	require.Equal(t, "main", sym.Name)
}

func TestByPCAppliesLoadBias(t *testing.T) {
	tr := buildFakeTree()
	const bias = addr.Address(0x555500000000)

	_, ok := tr.ByPC(addr.Address(0x1006), 0)
	require.True(t, ok)

	_, ok = tr.ByPC(addr.Address(0x1006).Add(int64(bias)), bias)
	require.True(t, ok)

	_, ok = tr.ByPC(addr.Address(0x1006), bias)
	require.False(t, ok, "without applying the bias the raw pc shouldn't resolve")
}

func TestByPCOutsideRangeFails(t *testing.T) {
	tr := buildFakeTree()
	_, ok := tr.ByPC(addr.Address(0x2000), 0)
	require.False(t, ok)
}

func TestByNameUnique(t *testing.T) {
	tr := buildFakeTree()

	sym, err := tr.ByNameUnique("main")
	require.NoError(t, err)
	require.Equal(t, Offset(2), sym.Offset)

	_, err = tr.ByNameUnique("does_not_exist")
	require.Error(t, err)
}

func TestByNameUniqueAmbiguous(t *testing.T) {
	tr := buildFakeTree()
	dup := &Symbol{Kind: KindVariable, Name: "main", Offset: 99}
	tr.byName["main"] = append(tr.byName["main"], dup)

	_, err := tr.ByNameUnique("main")
	require.Error(t, err)
	require.Equal(t, cmerr.AmbiguousSymbol, cmerr.KindOf(err))
}

func TestTypeOfResolves(t *testing.T) {
	tr := buildFakeTree()

	variable, ok := tr.ByOffset(Offset(3))
	require.True(t, ok)

	typ, ok := tr.TypeOf(variable)
	require.True(t, ok)
	require.Equal(t, "int", typ.Name)
}

func TestTypeOfDanglingReference(t *testing.T) {
	tr := buildFakeTree()
	dangling := &Symbol{Kind: KindVariable, Name: "y", Offset: 5, HasType: true, TypeOffset: 999}
	tr.byOffset[5] = dangling

	resolveDanglingTypes(tr.byOffset)

	_, ok := tr.TypeOf(dangling)
	require.False(t, ok)
}

func TestFirstLoadVaddr(t *testing.T) {
	tr := buildFakeTree()
	v, ok := tr.FirstLoadVaddr()
	require.True(t, ok)
	require.Equal(t, addr.Address(0x1000), v)
}

func TestEnclosingSubprogram(t *testing.T) {
	tr := buildFakeTree()
	variable, ok := tr.ByOffset(Offset(3))
	require.True(t, ok)

	sub, ok := variable.EnclosingSubprogram()
	require.True(t, ok)
	require.Equal(t, "main", sub.Name)
}
