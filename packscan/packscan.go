// Package packscan implements the streaming pack parser: it reads a
// git packfile object by object from a plain io.Reader, decompressing
// commits and trees (computing their SHA-1 identity), discarding blobs
// and tags, and reconstructing OFS_DELTA/REF_DELTA objects whose base
// was retained. Compressed input passes through a fixed 64 KiB scratch
// window; the decompressed payload of every retained commit and tree
// is kept in memory for the life of the Parser as a possible delta base.
package packscan

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/coldpath/gitalarm/delta"
	"github.com/coldpath/gitalarm/internal/scratch"
	"github.com/coldpath/gitalarm/internal/zlibwindow"
	"github.com/coldpath/gitalarm/packobj"
)

// packMagic is the 8-byte header every pack stream starts with:
// "PACK" followed by a big-endian version number of 2.
var packMagic = [8]byte{'P', 'A', 'C', 'K', 0, 0, 0, 2}

// Object is a single commit or tree yielded by the parser, whether
// read directly or reconstructed from a delta against a retained base.
type Object struct {
	ID      packobj.ID
	Type    packobj.Type
	Payload []byte
}

// Stats tallies what a Parser has seen so far, matching the
// commits/trees/skipped/total summary printed per repository.
type Stats struct {
	Commits int
	Trees   int
	Skipped int
	Total   int
}

// Parser is the streaming pack object scanner. Use NewParser, then
// call Scan in a loop; Object returns the most recently scanned
// retained object, and Err reports any terminal error.
type Parser struct {
	buf *scratch.Buffer
	src io.Reader
	win *zlibwindow.Window

	count     int64 // declared object count; 0 means the streaming dialect
	streaming bool

	payloadByID map[packobj.ID][]byte
	typeByID    map[packobj.ID]packobj.Type
	idByOffset  map[int64]packobj.ID

	stats Stats
	cur   Object
	done  bool
	err   error
}

// NewParser reads the 12-byte pack header from r (which must be
// positioned at the start of a pack stream) and returns a ready
// Parser. An observed object count of 0 is treated as the streaming
// dialect, terminated by a type-0 header byte rather than a count.
func NewParser(r io.Reader) (*Parser, error) {
	buf := scratch.New()
	if err := buf.Refill(r); err != nil {
		return nil, fmt.Errorf("packscan: reading pack header: %w", err)
	}
	if buf.Len() < 12 {
		return nil, fmt.Errorf("packscan: short pack header (%d bytes)", buf.Len())
	}

	hdr := buf.Bytes()
	var magic [8]byte
	copy(magic[:], hdr[:8])
	if magic != packMagic {
		return nil, fmt.Errorf("packscan: bad pack magic %x", hdr[:8])
	}
	count := binary.BigEndian.Uint32(hdr[8:12])
	buf.Advance(12)

	p := &Parser{
		buf:         buf,
		src:         r,
		count:       int64(count),
		streaming:   count == 0,
		payloadByID: make(map[packobj.ID][]byte),
		typeByID:    make(map[packobj.ID]packobj.Type),
		idByOffset:  make(map[int64]packobj.ID),
	}
	p.win = zlibwindow.New(buf, r)
	return p, nil
}

// Scan advances to the next retained (commit/tree) object, skipping
// past blobs, tags, and deltas whose base was not retained. It
// returns false once the pack stream is exhausted or an error occurs;
// callers must check Err to distinguish the two.
func (p *Parser) Scan() bool {
	if p.done {
		return false
	}

	for {
		if !p.streaming && p.stats.Total >= p.count {
			p.finish()
			return false
		}

		if err := p.buf.Refill(p.src); err != nil {
			p.fail(fmt.Errorf("packscan: refilling scratch buffer: %w", err))
			return false
		}
		if p.buf.Len() == 0 {
			p.fail(fmt.Errorf("packscan: %w: pack stream ended mid-object", io.ErrUnexpectedEOF))
			return false
		}

		offset := p.buf.Offset()
		typ, size, n, err := packobj.DecodeHeader(p.buf.Bytes())
		if err != nil {
			p.fail(fmt.Errorf("packscan: decoding object header at offset %d: %w", offset, err))
			return false
		}
		p.buf.Advance(n)

		if typ == packobj.TypeInvalid {
			p.finish()
			return false
		}

		switch {
		case typ.Retained():
			payload, err := p.inflate(size)
			if err != nil {
				p.fail(err)
				return false
			}
			id, err := packobj.Identity(typ, payload)
			if err != nil {
				p.fail(err)
				return false
			}
			p.retain(id, typ, payload, offset)
			p.countObject(typ)
			p.cur = Object{ID: id, Type: typ, Payload: payload}
			return true

		case typ == packobj.TypeBlob || typ == packobj.TypeTag:
			if err := p.skip(size); err != nil {
				p.fail(err)
				return false
			}
			p.idByOffset[offset] = packobj.Zero
			p.stats.Skipped++
			p.stats.Total++
			continue

		case typ == packobj.TypeOfsDelta:
			if err := p.buf.Refill(p.src); err != nil {
				p.fail(fmt.Errorf("packscan: refilling before ofs-delta offset: %w", err))
				return false
			}
			rel, n, err := packobj.DecodeOfsDeltaOffset(p.buf.Bytes())
			if err != nil {
				p.fail(fmt.Errorf("packscan: decoding ofs-delta offset at %d: %w", offset, err))
				return false
			}
			p.buf.Advance(n)

			baseOffset := offset - int64(rel)
			baseID, known := p.idByOffset[baseOffset]
			if !known {
				p.fail(fmt.Errorf("packscan: ofs-delta at %d references unseen offset %d", offset, baseOffset))
				return false
			}

			obj, skipped, err := p.resolveDelta(size, offset, baseID)
			if err != nil {
				p.fail(err)
				return false
			}
			if skipped {
				p.stats.Skipped++
				p.stats.Total++
				continue
			}
			p.countObject(obj.Type)
			p.cur = obj
			return true

		case typ == packobj.TypeRefDelta:
			if err := p.buf.Refill(p.src); err != nil {
				p.fail(fmt.Errorf("packscan: refilling before ref-delta id: %w", err))
				return false
			}
			if p.buf.Len() < 20 {
				p.fail(fmt.Errorf("packscan: truncated ref-delta base id at offset %d", offset))
				return false
			}
			baseID := packobj.ID(hex.EncodeToString(p.buf.Bytes()[:20]))
			p.buf.Advance(20)

			obj, skipped, err := p.resolveDelta(size, offset, baseID)
			if err != nil {
				p.fail(err)
				return false
			}
			if skipped {
				p.stats.Skipped++
				p.stats.Total++
				continue
			}
			p.countObject(obj.Type)
			p.cur = obj
			return true

		default:
			p.fail(fmt.Errorf("packscan: unexpected object type %s at offset %d", typ, offset))
			return false
		}
	}
}

// Object returns the object produced by the most recent successful
// call to Scan.
func (p *Parser) Object() Object { return p.cur }

// Stats returns the running tally of commits/trees/skipped/total.
func (p *Parser) Stats() Stats { return p.stats }

// Err returns the first error encountered by Scan, if any.
func (p *Parser) Err() error { return p.err }

func (p *Parser) countObject(t packobj.Type) {
	p.stats.Total++
	if t == packobj.TypeCommit {
		p.stats.Commits++
	} else {
		p.stats.Trees++
	}
}

// retain records a newly decoded (or reconstructed) object as a
// possible future delta base.
func (p *Parser) retain(id packobj.ID, t packobj.Type, payload []byte, offset int64) {
	p.payloadByID[id] = payload
	p.typeByID[id] = t
	p.idByOffset[offset] = id
}

// resolveDelta decompresses a delta payload against the base
// identified by baseID. If the base was skipped (packobj.Zero) or is
// otherwise unknown, the delta payload is discarded and the delta is
// itself marked skipped at offset.
func (p *Parser) resolveDelta(size uint64, offset int64, baseID packobj.ID) (Object, bool, error) {
	base, haveBase := p.payloadByID[baseID]
	if baseID == packobj.Zero || !haveBase {
		if err := p.skip(size); err != nil {
			return Object{}, false, err
		}
		p.idByOffset[offset] = packobj.Zero
		return Object{}, true, nil
	}

	payload, err := p.inflate(size)
	if err != nil {
		return Object{}, false, err
	}

	reconstructed, err := delta.Apply(base, payload)
	if err != nil {
		return Object{}, false, fmt.Errorf("packscan: applying delta at offset %d: %w", offset, err)
	}

	baseType := p.typeByID[baseID]
	id, err := packobj.Identity(baseType, reconstructed)
	if err != nil {
		return Object{}, false, err
	}
	p.retain(id, baseType, reconstructed, offset)
	return Object{ID: id, Type: baseType, Payload: reconstructed}, false, nil
}

// inflate decompresses exactly size bytes from the pack stream's
// current position and returns them, consuming the zlib trailer too.
func (p *Parser) inflate(size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(p.win)
	if err != nil {
		return nil, fmt.Errorf("packscan: zlib header: %w", err)
	}
	defer zr.Close()

	payload := make([]byte, size)
	if _, err := io.ReadFull(zr, payload); err != nil {
		return nil, fmt.Errorf("packscan: inflating %d bytes: %w", size, err)
	}
	if err := drainZlibTrailer(zr); err != nil {
		return nil, err
	}
	return payload, nil
}

// skip decompresses and discards exactly size bytes, for objects
// whose content is never retained (blob, tag, skipped delta).
func (p *Parser) skip(size uint64) error {
	zr, err := zlib.NewReader(p.win)
	if err != nil {
		return fmt.Errorf("packscan: zlib header: %w", err)
	}
	defer zr.Close()

	n, err := io.CopyN(io.Discard, zr, int64(size))
	if err != nil {
		return fmt.Errorf("packscan: skipping %d bytes: %w", size, err)
	}
	if n != int64(size) {
		return fmt.Errorf("packscan: short skip (wanted %d, got %d)", size, n)
	}
	return drainZlibTrailer(zr)
}

// drainZlibTrailer forces the zlib reader to consume (and checksum
// -verify) its trailer by attempting one more read past the declared
// payload size; a non-EOF result means either checksum failure or the
// object decompressed to more bytes than its header declared.
func drainZlibTrailer(zr io.Reader) error {
	var extra [1]byte
	n, err := zr.Read(extra[:])
	if n > 0 {
		return fmt.Errorf("packscan: object decompressed past its declared size")
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("packscan: zlib trailer: %w", err)
	}
	return nil
}

// finish consumes the pack's trailing 20-byte checksum (unverified by
// design; see the archive/resume-scanner symmetry), checks that no
// bytes follow it, and marks the parser done.
func (p *Parser) finish() {
	if err := p.buf.Refill(p.src); err != nil {
		p.err = fmt.Errorf("packscan: refilling for trailer: %w", err)
		p.done = true
		return
	}
	if p.buf.Len() < 20 {
		p.err = fmt.Errorf("packscan: truncated pack trailer (%d of 20 bytes)", p.buf.Len())
		p.done = true
		return
	}
	p.buf.Advance(20)
	if err := p.buf.Refill(p.src); err != nil {
		p.err = fmt.Errorf("packscan: reading past trailer: %w", err)
	} else if p.buf.Len() != 0 {
		p.err = fmt.Errorf("packscan: %d unexpected bytes after pack trailer", p.buf.Len())
	}
	p.done = true
}

func (p *Parser) fail(err error) {
	p.err = err
	p.done = true
}
