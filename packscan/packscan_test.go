package packscan_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/coldpath/gitalarm/packobj"
	"github.com/coldpath/gitalarm/packscan"
	"github.com/stretchr/testify/require"
)

// deflate zlib-compresses payload the way a real pack stream stores
// every object's content, for building test fixtures.
func deflate(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func packHeader(count uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("PACK")
	_ = binary.Write(&buf, binary.BigEndian, uint32(2))
	_ = binary.Write(&buf, binary.BigEndian, count)
	return buf.Bytes()
}

func objectEntry(t *testing.T, typ packobj.Type, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(packobj.EncodeHeader(typ, uint64(len(payload))))
	buf.Write(deflate(t, payload))
	return buf.Bytes()
}

func fakeTrailer() []byte {
	return bytes.Repeat([]byte{0x00}, 20)
}

func commitPayload(msg string) []byte {
	return []byte("tree 0000000000000000000000000000000000000000\nauthor a <a@b> 0 +0000\ncommitter a <a@b> 0 +0000\n\n" + msg)
}

func TestParserYieldsSingleCommit(t *testing.T) {
	payload := commitPayload("hello")

	var stream bytes.Buffer
	stream.Write(packHeader(1))
	stream.Write(objectEntry(t, packobj.TypeCommit, payload))
	stream.Write(fakeTrailer())

	p, err := packscan.NewParser(&stream)
	require.NoError(t, err)

	require.True(t, p.Scan())
	require.NoError(t, p.Err())
	obj := p.Object()
	require.Equal(t, packobj.TypeCommit, obj.Type)
	require.Equal(t, payload, obj.Payload)

	wantID, err := packobj.Identity(packobj.TypeCommit, payload)
	require.NoError(t, err)
	require.Equal(t, wantID, obj.ID)

	require.False(t, p.Scan())
	require.NoError(t, p.Err())

	stats := p.Stats()
	require.Equal(t, 1, stats.Commits)
	require.Equal(t, 0, stats.Trees)
	require.Equal(t, 0, stats.Skipped)
	require.Equal(t, 1, stats.Total)
}

func TestParserSkipsBlobsAndTags(t *testing.T) {
	commit := commitPayload("c")
	tree := []byte("100644 file\x00" + string(bytes.Repeat([]byte{0xAB}, 20)))
	blob := bytes.Repeat([]byte("blob content "), 200)

	var stream bytes.Buffer
	stream.Write(packHeader(3))
	stream.Write(objectEntry(t, packobj.TypeBlob, blob))
	stream.Write(objectEntry(t, packobj.TypeCommit, commit))
	stream.Write(objectEntry(t, packobj.TypeTree, tree))
	stream.Write(fakeTrailer())

	p, err := packscan.NewParser(&stream)
	require.NoError(t, err)

	require.True(t, p.Scan())
	require.Equal(t, packobj.TypeCommit, p.Object().Type)

	require.True(t, p.Scan())
	require.Equal(t, packobj.TypeTree, p.Object().Type)

	require.False(t, p.Scan())
	require.NoError(t, p.Err())

	stats := p.Stats()
	require.Equal(t, 1, stats.Commits)
	require.Equal(t, 1, stats.Trees)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 3, stats.Total)
}

func TestParserReconstructsRefDelta(t *testing.T) {
	base := commitPayload("base commit message")
	baseID, err := packobj.Identity(packobj.TypeCommit, base)
	require.NoError(t, err)

	target := commitPayload("base commit MESSAGE, extended")
	deltaPayload := buildInsertOnlyDelta(t, base, target)

	var stream bytes.Buffer
	stream.Write(packHeader(2))
	stream.Write(objectEntry(t, packobj.TypeCommit, base))

	var refEntry bytes.Buffer
	refEntry.Write(packobj.EncodeHeader(packobj.TypeRefDelta, uint64(len(deltaPayload))))
	idBytes, err := hex.DecodeString(string(baseID))
	require.NoError(t, err)
	refEntry.Write(idBytes)
	refEntry.Write(deflate(t, deltaPayload))
	stream.Write(refEntry.Bytes())

	stream.Write(fakeTrailer())

	p, err := packscan.NewParser(&stream)
	require.NoError(t, err)

	require.True(t, p.Scan())
	require.Equal(t, base, p.Object().Payload)

	require.True(t, p.Scan())
	require.Equal(t, target, p.Object().Payload)
	require.Equal(t, packobj.TypeCommit, p.Object().Type)

	require.False(t, p.Scan())
	require.NoError(t, p.Err())
}

func TestParserSkipsDeltaWithUnknownBase(t *testing.T) {
	target := commitPayload("orphan delta target")
	deltaPayload := buildInsertOnlyDelta(t, []byte{}, target)

	var stream bytes.Buffer
	stream.Write(packHeader(1))

	var refEntry bytes.Buffer
	refEntry.Write(packobj.EncodeHeader(packobj.TypeRefDelta, uint64(len(deltaPayload))))
	refEntry.Write(bytes.Repeat([]byte{0xCD}, 20)) // base id never seen in this pack
	refEntry.Write(deflate(t, deltaPayload))
	stream.Write(refEntry.Bytes())

	stream.Write(fakeTrailer())

	p, err := packscan.NewParser(&stream)
	require.NoError(t, err)

	require.False(t, p.Scan())
	require.NoError(t, p.Err())

	stats := p.Stats()
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 1, stats.Total)
}

func TestParserStreamingDialectEmptyPack(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(packHeader(0))
	stream.WriteByte(0x00) // type-0 terminator
	stream.Write(fakeTrailer())

	p, err := packscan.NewParser(&stream)
	require.NoError(t, err)

	require.False(t, p.Scan())
	require.NoError(t, p.Err())
	require.Equal(t, 0, p.Stats().Total)
}

func TestParserRejectsBadMagic(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("NOPE")
	stream.Write(make([]byte, 8))

	_, err := packscan.NewParser(&stream)
	require.Error(t, err)
}

// buildInsertOnlyDelta constructs a minimal delta stream that ignores
// source entirely and inserts target as literal bytes, chunked into
// at most 127-byte insert commands as the format requires.
func buildInsertOnlyDelta(t *testing.T, source, target []byte) []byte {
	t.Helper()
	var d bytes.Buffer
	d.Write(packobj.EncodeDeltaVarint(uint64(len(source))))
	d.Write(packobj.EncodeDeltaVarint(uint64(len(target))))

	for len(target) > 0 {
		chunk := target
		if len(chunk) > 127 {
			chunk = chunk[:127]
		}
		d.WriteByte(byte(len(chunk)))
		d.Write(chunk)
		target = target[len(chunk):]
	}
	return d.Bytes()
}
