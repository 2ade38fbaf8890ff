package packobj_test

import (
	"math/rand"
	"testing"

	"github.com/coldpath/gitalarm/packobj"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		typ  packobj.Type
		size uint64
	}{
		{packobj.TypeCommit, 0},
		{packobj.TypeTree, 15},
		{packobj.TypeBlob, 16},
		{packobj.TypeTag, 1 << 20},
		{packobj.TypeOfsDelta, (1 << 35) + 7},
	}
	for _, c := range cases {
		enc := packobj.EncodeHeader(c.typ, c.size)
		gotType, gotSize, n, err := packobj.DecodeHeader(enc)
		require.NoError(t, err)
		require.Equal(t, c.typ, gotType)
		require.Equal(t, c.size, gotSize)
		require.Equal(t, len(enc), n)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, _, _, err := packobj.DecodeHeader([]byte{0x80})
	require.Error(t, err)
}

func TestOfsDeltaVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 126, 127, 128, 129, 16383, 16384, 1 << 20, 1 << 34}
	for _, v := range values {
		enc := packobj.EncodeOfsDeltaOffset(v)
		got, n, err := packobj.DecodeOfsDeltaOffset(enc)
		require.NoError(t, err)
		require.Equal(t, v, got, "value %d", v)
		require.Equal(t, len(enc), n)
	}
}

func TestOfsDeltaVarintRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v := uint64(rng.Int63n(1 << 40))
		enc := packobj.EncodeOfsDeltaOffset(v)
		got, _, err := packobj.DecodeOfsDeltaOffset(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDeltaVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range values {
		enc := packobj.EncodeDeltaVarint(v)
		got, n, err := packobj.DecodeDeltaVarint(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(enc), n)
	}
}

// Crafted inputs must decode to different values under the two varint
// flavors, guarding against accidentally unifying them.
func TestVarintFlavorsDisagree(t *testing.T) {
	raw := []byte{0x81, 0x00}

	ofs, _, err := packobj.DecodeOfsDeltaOffset(raw)
	require.NoError(t, err)

	delta, _, err := packobj.DecodeDeltaVarint(raw)
	require.NoError(t, err)

	require.NotEqual(t, ofs, delta)
	require.Equal(t, uint64(256), ofs)
	require.Equal(t, uint64(1), delta)
}

func TestDecodeDeltaVarintTruncated(t *testing.T) {
	_, _, err := packobj.DecodeDeltaVarint([]byte{0x80, 0x80})
	require.Error(t, err)
}
