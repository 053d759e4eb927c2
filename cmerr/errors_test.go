package cmerr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/cmerr"
)

func TestWrapSameKindCollapses(t *testing.T) {
	e := cmerr.New(cmerr.Ptrace, "peek failed at %#x", 0x400000)
	f := cmerr.Wrap(cmerr.Ptrace, e, "step over breakpoint failed")
	require.Same(t, e, f)
	require.Equal(t, "peek failed at 0x400000", f.Error())
}

func TestWrapDifferentKindChains(t *testing.T) {
	inner := cmerr.New(cmerr.MemoryRead, "short read at %#x", 0x1000)
	outer := cmerr.Wrap(cmerr.Dwarf, inner, "evaluating location expression")
	require.Equal(t, "evaluating location expression: short read at 0x1000", outer.Error())
	require.True(t, cmerr.Is(outer, cmerr.MemoryRead))
	require.True(t, cmerr.Is(outer, cmerr.Dwarf))
	require.False(t, cmerr.Is(outer, cmerr.Ptrace))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, cmerr.Unknown, cmerr.KindOf(fmt.Errorf("plain")))
	require.Equal(t, cmerr.BreakpointExists, cmerr.KindOf(cmerr.New(cmerr.BreakpointExists, "at %#x", 1)))
}
