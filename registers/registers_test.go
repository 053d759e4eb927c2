package registers_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/registers"
)

func TestGetSetKnownRegister(t *testing.T) {
	snap := &registers.Snapshot{}
	require.NoError(t, registers.Set(snap, "rip", 0x401020))
	v, err := registers.Get(snap, "rip")
	require.NoError(t, err)
	require.Equal(t, uint64(0x401020), v)
	require.Equal(t, uint64(0x401020), snap.Rip)
}

func TestUnknownRegisterName(t *testing.T) {
	snap := &registers.Snapshot{}
	_, err := registers.Get(snap, "notareg")
	require.Error(t, err)

	err = registers.Set(snap, "notareg", 1)
	require.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	names := registers.Names()
	require.Contains(t, names, "rip")
	require.Contains(t, names, "rsp")
	require.Contains(t, names, "r15")
	for i := 1; i < len(names); i++ {
		require.LessOrEqual(t, names[i-1], names[i])
	}
}
