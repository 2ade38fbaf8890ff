// Package archive implements the on-disk archive format: a
// gzip-compressed stream of "REPO owner/name" records, each holding a
// packfile built from only the commit/tree objects packscan retained.
// Every record uses the streaming dialect (a zero object count,
// terminated by a type-0 header byte) since the writer never knows in
// advance how many objects a repository's walk will keep.
package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/coldpath/gitalarm/packobj"
	"github.com/coldpath/gitalarm/packscan"
)

// Magic is the 4 bytes an archive begins with once its gzip envelope
// has been stripped.
var Magic = [4]byte{0x30, 0x9E, 0xB9, 0x08}

// streamingHeader is the 12-byte pack header every record starts
// with: "PACK", version 2, and a placeholder object count of 0 (the
// streaming dialect's count is never patched in afterward).
var streamingHeader = [12]byte{'P', 'A', 'C', 'K', 0, 0, 0, 2, 0, 0, 0, 0}

// pseudoTrailerSize is the length of the zero-filled bytes closing
// every record: the first of them doubles as the type-0 terminator a
// reader's object-header decode sees, the remaining twenty stand in
// for (and are never checked against) a real pack checksum.
const pseudoTrailerSize = 21

// objectLevel is the zlib compression level used for each object's
// payload. Level 0 favors write throughput over size, matching the
// original crawler's own choice for its one-shot re-encode of objects
// it has already paid to decompress once.
const objectLevel = zlib.NoCompression

// Writer appends REPO records to a gzip-compressed archive stream.
type Writer struct {
	gz *gzip.Writer
}

// Create opens a brand-new archive on w and writes the magic header.
func Create(w io.Writer) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("archive: opening gzip writer: %w", err)
	}
	if _, err := gz.Write(Magic[:]); err != nil {
		return nil, fmt.Errorf("archive: writing magic header: %w", err)
	}
	return &Writer{gz: gz}, nil
}

// Resume opens a gzip writer on w for appending further records. The
// caller is expected to have already called CopyPrefix with the
// survived prefix of a previous archive (magic plus whichever REPO
// records Scan confirmed complete) before appending anything new.
func Resume(w io.Writer) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("archive: opening gzip writer: %w", err)
	}
	return &Writer{gz: gz}, nil
}

// CopyPrefix recompresses exactly n raw bytes read from src (an
// already-gunzipped view of a previous archive) into the archive.
// Resuming recompresses the surviving prefix fresh rather than
// concatenating a second gzip member onto the old one.
func (w *Writer) CopyPrefix(src io.Reader, n int64) error {
	copied, err := io.CopyN(w.gz, src, n)
	if err != nil {
		return fmt.Errorf("archive: copying %d byte prefix (got %d): %w", n, copied, err)
	}
	return nil
}

// WriteRepo appends one REPO record for owner/name, draining p until
// it is exhausted and re-encoding every object it yields. It returns
// p's final stats whether or not an error interrupts the scan, since
// a caller that is about to crash-test resume behavior still wants to
// know how far the scan got.
func (w *Writer) WriteRepo(owner, name string, p *packscan.Parser) (packscan.Stats, error) {
	if _, err := fmt.Fprintf(w.gz, "REPO %s/%s\x00", owner, name); err != nil {
		return packscan.Stats{}, fmt.Errorf("archive: writing repo header: %w", err)
	}
	if _, err := w.gz.Write(streamingHeader[:]); err != nil {
		return packscan.Stats{}, fmt.Errorf("archive: writing pack header: %w", err)
	}

	for p.Scan() {
		obj := p.Object()
		if err := w.writeObject(obj.Type, obj.Payload); err != nil {
			return p.Stats(), err
		}
	}
	if err := p.Err(); err != nil {
		return p.Stats(), fmt.Errorf("archive: scanning pack for %s/%s: %w", owner, name, err)
	}

	if _, err := w.gz.Write(make([]byte, pseudoTrailerSize)); err != nil {
		return p.Stats(), fmt.Errorf("archive: writing pseudo-trailer: %w", err)
	}
	return p.Stats(), nil
}

func (w *Writer) writeObject(typ packobj.Type, payload []byte) error {
	if _, err := w.gz.Write(packobj.EncodeHeader(typ, uint64(len(payload)))); err != nil {
		return fmt.Errorf("archive: writing object header: %w", err)
	}
	zw, err := zlib.NewWriterLevel(w.gz, objectLevel)
	if err != nil {
		return fmt.Errorf("archive: opening object deflate stream: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return fmt.Errorf("archive: compressing object payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: closing object deflate stream: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying gzip writer.
func (w *Writer) Close() error {
	return w.gz.Close()
}
