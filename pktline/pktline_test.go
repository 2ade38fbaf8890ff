package pktline_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/coldpath/gitalarm/pktline"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "hello"))
	require.NoError(t, pktline.WriteFlush(&buf))

	got, err := pktline.ReadString(&buf)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = pktline.Read(&buf)
	require.ErrorIs(t, err, pktline.ErrFlush)
}

func TestReadFlush(t *testing.T) {
	r := bytes.NewBufferString("0000")
	_, err := pktline.Read(r)
	require.ErrorIs(t, err, pktline.ErrFlush)
}

func TestReadMalformedShortLength(t *testing.T) {
	// "0002" declares a total length of 2, less than the 4-byte prefix itself.
	r := bytes.NewBufferString("0002")
	_, err := pktline.Read(r)
	var malformed *pktline.ErrMalformed
	require.True(t, errors.As(err, &malformed))
}

func TestReadMalformedNonHex(t *testing.T) {
	r := bytes.NewBufferString("zzzz")
	_, err := pktline.Read(r)
	var malformed *pktline.ErrMalformed
	require.True(t, errors.As(err, &malformed))
}

func TestScannerStopsAtFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "# service=git-upload-pack\n"))
	require.NoError(t, pktline.WriteFlush(&buf))
	require.NoError(t, pktline.WriteString(&buf, "ignored after flush"))

	s := pktline.NewScanner(&buf)
	require.True(t, s.Scan())
	require.Equal(t, "# service=git-upload-pack\n", s.Text())
	require.False(t, s.Scan())
	require.True(t, s.Flushed())
	require.NoError(t, s.Err())
}

func TestScannerMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "want abc\n"))
	require.NoError(t, pktline.WriteString(&buf, "want def\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	s := pktline.NewScanner(&buf)
	var frames []string
	for s.Scan() {
		frames = append(frames, s.Text())
	}
	require.NoError(t, s.Err())
	require.True(t, s.Flushed())
	require.Equal(t, []string{"want abc\n", "want def\n"}, frames)
}

func TestScannerEOFWithoutFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "partial\n"))

	s := pktline.NewScanner(&buf)
	require.True(t, s.Scan())
	require.False(t, s.Scan())
	require.False(t, s.Flushed())
	require.NoError(t, s.Err())
}

func TestWritePayloadTooLarge(t *testing.T) {
	big := make([]byte, pktline.MaxLen)
	var buf bytes.Buffer
	err := pktline.Write(&buf, big)
	require.Error(t, err)
}

func TestReadEOF(t *testing.T) {
	_, err := pktline.Read(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}
