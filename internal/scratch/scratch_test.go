package scratch_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/coldpath/gitalarm/internal/scratch"
	"github.com/stretchr/testify/require"
)

func TestRefillFillsFromSource(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xAB}, 1000))
	b := scratch.New()
	require.NoError(t, b.Refill(src))
	require.GreaterOrEqual(t, b.Len(), scratch.LowWater)
}

func TestAdvanceAndCompaction(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{1, 2, 3, 4}, 4096))
	b := scratch.New()
	require.NoError(t, b.Refill(src))

	// Consume almost everything, leaving fewer than LowWater bytes.
	b.Advance(b.Len() - 10)
	require.Equal(t, 10, b.Len())

	offsetBefore := b.Offset()
	require.NoError(t, b.Refill(src))
	require.GreaterOrEqual(t, b.Len(), scratch.LowWater)
	// Offset must have kept advancing monotonically across compaction.
	require.GreaterOrEqual(t, b.Offset(), offsetBefore)
}

func TestRefillAtRealEOF(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3})
	b := scratch.New()
	require.NoError(t, b.Refill(src))
	require.Equal(t, 3, b.Len())

	b.Advance(3)
	require.True(t, b.AtEOF())
	require.NoError(t, b.Refill(src))
	require.True(t, b.AtEOF())
}

func TestOffsetTracksConsumedBytes(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{9}, scratch.Size*2))
	b := scratch.New()
	require.NoError(t, b.Refill(src))

	require.Equal(t, int64(0), b.Offset())
	b.Advance(100)
	require.Equal(t, int64(100), b.Offset())
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestRefillPropagatesNonEOFError(t *testing.T) {
	b := scratch.New()
	err := b.Refill(errReader{})
	require.ErrorIs(t, err, io.ErrClosedPipe)
}
