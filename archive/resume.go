package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/coldpath/gitalarm/internal/scratch"
	"github.com/coldpath/gitalarm/internal/zlibwindow"
	"github.com/coldpath/gitalarm/packobj"
)

// maxRepoHeaderLen bounds how far Scan looks for the NUL terminating
// a "REPO owner/name\0" header before giving up.
const maxRepoHeaderLen = 95

// RepoRecord identifies one repository record found while resuming.
type RepoRecord struct {
	Owner, Name string
}

// Scan walks a gunzipped archive stream (the caller peels off the
// gzip envelope and checks Magic itself, since Scan only cares about
// REPO records) and returns every record that was completely written,
// plus the byte offset into r immediately following the last one. A
// trailing record left incomplete by a crash mid-write is silently
// excluded, both from the returned records and from offset, so a
// caller can safely recompress exactly offset bytes and resume
// writing from there without rewriting anything confirmed good.
func Scan(r io.Reader) ([]RepoRecord, int64, error) {
	buf := scratch.New()
	win := zlibwindow.New(buf, r)

	var records []RepoRecord
	var offset int64

	for {
		owner, name, err := scanOneRecord(buf, win, r)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return records, offset, nil
			}
			return nil, 0, err
		}
		if owner == "" && name == "" {
			return records, offset, nil
		}
		records = append(records, RepoRecord{Owner: owner, Name: name})
		offset = buf.Offset()
	}
}

// scanOneRecord parses one REPO record starting at the buffer's
// current position. It returns ("", "", nil) if the stream ended
// cleanly exactly at a record boundary (nothing left to parse), or an
// error wrapping io.ErrUnexpectedEOF if the stream ran out partway
// through a record.
func scanOneRecord(buf *scratch.Buffer, win *zlibwindow.Window, r io.Reader) (owner, name string, err error) {
	if err := buf.Refill(r); err != nil {
		return "", "", fmt.Errorf("archive: refilling scanner buffer: %w", err)
	}
	if buf.Len() == 0 {
		return "", "", nil
	}

	if err := ensure(buf, r, 5); err != nil {
		return "", "", err
	}
	if string(buf.Bytes()[:5]) != "REPO " {
		return "", "", fmt.Errorf("archive: missing REPO header at offset %d", buf.Offset())
	}
	buf.Advance(5)

	owner, name, err = readRepoName(buf, r)
	if err != nil {
		return "", "", err
	}

	if err := readPackHeader(buf, r); err != nil {
		return "", "", err
	}

	for {
		if err := ensure(buf, r, 1); err != nil {
			return "", "", err
		}
		typ, size, n, err := packobj.DecodeHeader(buf.Bytes())
		if err != nil {
			return "", "", fmt.Errorf("archive: decoding object header: %w", err)
		}
		buf.Advance(n)

		if typ == packobj.TypeInvalid {
			break
		}
		if !typ.Retained() {
			return "", "", fmt.Errorf("archive: unexpected object type %s in archive record", typ)
		}
		if err := drainObject(win, size); err != nil {
			return "", "", err
		}
	}

	if err := skipTrailer(buf, r); err != nil {
		return "", "", err
	}
	return owner, name, nil
}

// readRepoName reads the "owner/name\0" portion of a REPO header
// (the leading "REPO " prefix has already been consumed).
func readRepoName(buf *scratch.Buffer, r io.Reader) (owner, name string, err error) {
	ensureErr := ensure(buf, r, maxRepoHeaderLen)
	if ensureErr != nil && !errors.Is(ensureErr, io.ErrUnexpectedEOF) {
		return "", "", ensureErr
	}

	limit := buf.Len()
	if limit > maxRepoHeaderLen {
		limit = maxRepoHeaderLen
	}
	data := buf.Bytes()
	idx := -1
	for i := 0; i < limit; i++ {
		if data[i] == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", io.ErrUnexpectedEOF
	}

	full := string(data[:idx])
	buf.Advance(idx + 1)

	owner, name, ok := strings.Cut(full, "/")
	if !ok {
		return "", "", fmt.Errorf("archive: malformed repo header %q", full)
	}
	return owner, name, nil
}

func readPackHeader(buf *scratch.Buffer, r io.Reader) error {
	if err := ensure(buf, r, 12); err != nil {
		return err
	}
	hdr := buf.Bytes()[:12]
	if hdr[0] != 'P' || hdr[1] != 'A' || hdr[2] != 'C' || hdr[3] != 'K' ||
		hdr[4] != 0 || hdr[5] != 0 || hdr[6] != 0 || hdr[7] != 2 {
		return fmt.Errorf("archive: bad pack magic %x", hdr[:8])
	}
	buf.Advance(12)
	return nil
}

func skipTrailer(buf *scratch.Buffer, r io.Reader) error {
	if err := ensure(buf, r, pseudoTrailerSize-1); err != nil {
		return err
	}
	buf.Advance(pseudoTrailerSize - 1)
	return nil
}

// drainObject decompresses and discards exactly size bytes of one
// object's payload, verifying (but not retaining) the zlib trailer.
func drainObject(win *zlibwindow.Window, size uint64) error {
	zr, err := zlib.NewReader(win)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.ErrUnexpectedEOF
		}
		return fmt.Errorf("archive: zlib header: %w", err)
	}
	defer zr.Close()

	n, err := io.CopyN(io.Discard, zr, int64(size))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.ErrUnexpectedEOF
		}
		return fmt.Errorf("archive: draining %d byte object: %w", size, err)
	}
	if n != int64(size) {
		return io.ErrUnexpectedEOF
	}

	var extra [1]byte
	m, rerr := zr.Read(extra[:])
	if m > 0 {
		return fmt.Errorf("archive: object decompressed past its declared size")
	}
	if rerr != nil && rerr != io.EOF {
		return fmt.Errorf("archive: zlib trailer: %w", rerr)
	}
	return nil
}

// ensure refills buf until at least n bytes are buffered, or returns
// io.ErrUnexpectedEOF once a refill makes no further progress.
func ensure(buf *scratch.Buffer, r io.Reader, n int) error {
	for buf.Len() < n {
		before := buf.Len()
		if err := buf.Refill(r); err != nil {
			return err
		}
		if buf.Len() == before {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}
