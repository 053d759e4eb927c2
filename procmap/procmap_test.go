package procmap_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/procmap"
)

func TestLoadSelf(t *testing.T) {
	regions, err := procmap.Load(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	found := false
	for _, r := range regions {
		if r.Execute {
			found = true
		}
		require.LessOrEqual(t, uint64(r.Start), uint64(r.End))
	}
	require.True(t, found, "expected at least one executable region in our own process")
}

func TestContains(t *testing.T) {
	r := procmap.Region{Start: addr.Address(0x1000), End: addr.Address(0x2000)}
	require.True(t, r.Contains(addr.Address(0x1000)))
	require.True(t, r.Contains(addr.Address(0x1fff)))
	require.False(t, r.Contains(addr.Address(0x2000)))
	require.False(t, r.Contains(addr.Address(0xfff)))
}
