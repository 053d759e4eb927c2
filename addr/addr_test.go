package addr_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
)

func TestAddressAddSubRoundTrip(t *testing.T) {
	a := addr.Address(0x401020)
	for _, n := range []int64{0, 1, -1, 4096, -4096, 1 << 40} {
		require.Equal(t, a, a.Add(n).Sub(n))
	}
}

func TestAddressString(t *testing.T) {
	require.Equal(t, "0x401020", addr.Address(0x401020).String())
	require.Equal(t, "0x0", addr.Address(0).String())
}

func TestParseAddress(t *testing.T) {
	for _, s := range []string{"0x401020", "401020", "0X401020"} {
		a, err := addr.ParseAddress(s)
		require.NoError(t, err)
		require.Equal(t, addr.Address(0x401020), a)
	}

	_, err := addr.ParseAddress("not-hex")
	require.Error(t, err)
}

func TestAddressJSONRoundTrip(t *testing.T) {
	a := addr.Address(0xdeadbeef)
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `"0xdeadbeef"`, string(b))

	var got addr.Address
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, a, got)
}

func TestWordBytesRoundTrip(t *testing.T) {
	w := addr.Word(0x0102030405060708)
	b := w.Bytes()
	require.Equal(t, w, addr.WordFromBytes(b[:]))
}
