// Package delta applies git-style pack deltas: a byte-instruction
// stream of copy-from-source and insert-literal commands that
// reconstructs a target object from a base object.
package delta

import (
	"errors"
	"fmt"

	"github.com/coldpath/gitalarm/packobj"
)

// ErrInvalid is returned when the delta stream is malformed: too
// short, truncated mid-instruction, a reserved 0x00 command byte, or
// a size/offset that does not fit the declared source/target.
var ErrInvalid = errors.New("delta: invalid delta stream")

const maxCopySize = 0x10000 // a zero-length copy-size field means this

type maskShift struct {
	mask  byte
	shift uint
}

var offsetFields = []maskShift{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var sizeFields = []maskShift{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

// Apply reconstructs a target object by applying delta to source,
// per the instruction stream described in the package doc comment.
// It fails if the delta's declared source size does not match
// len(source), if any copy/insert instruction runs past the bounds
// of source or the declared target size, or if the whole delta is
// not exactly consumed by the time the target size is reached.
func Apply(source, delta []byte) ([]byte, error) {
	srcSize, n, err := packobj.DecodeDeltaVarint(delta)
	if err != nil {
		return nil, fmt.Errorf("%w: reading source size: %w", ErrInvalid, err)
	}
	if srcSize != uint64(len(source)) {
		return nil, fmt.Errorf("%w: declared source size %d does not match %d bytes of source", ErrInvalid, srcSize, len(source))
	}
	delta = delta[n:]

	targetSize, n, err := packobj.DecodeDeltaVarint(delta)
	if err != nil {
		return nil, fmt.Errorf("%w: reading target size: %w", ErrInvalid, err)
	}
	delta = delta[n:]

	target := make([]byte, 0, targetSize)
	remaining := targetSize

	for remaining > 0 {
		if len(delta) == 0 {
			return nil, fmt.Errorf("%w: truncated instruction stream", ErrInvalid)
		}

		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&0x80 != 0:
			// Copy from source.
			var offset, size uint64
			offset, delta, err = decodeFields(cmd, delta, offsetFields)
			if err != nil {
				return nil, err
			}
			size, delta, err = decodeFields(cmd, delta, sizeFields)
			if err != nil {
				return nil, err
			}
			if size == 0 {
				size = maxCopySize
			}

			if size > remaining {
				return nil, fmt.Errorf("%w: copy of %d bytes exceeds %d bytes remaining in target", ErrInvalid, size, remaining)
			}
			if offset+size < offset || offset+size > uint64(len(source)) {
				return nil, fmt.Errorf("%w: copy [%d:%d) out of bounds of %d-byte source", ErrInvalid, offset, offset+size, len(source))
			}

			target = append(target, source[offset:offset+size]...)
			remaining -= size

		case cmd != 0:
			// Insert cmd literal bytes from the delta stream.
			size := uint64(cmd)
			if size > remaining {
				return nil, fmt.Errorf("%w: insert of %d bytes exceeds %d bytes remaining in target", ErrInvalid, size, remaining)
			}
			if uint64(len(delta)) < size {
				return nil, fmt.Errorf("%w: truncated insert payload", ErrInvalid)
			}
			target = append(target, delta[:size]...)
			delta = delta[size:]
			remaining -= size

		default:
			return nil, fmt.Errorf("%w: reserved 0x00 command byte", ErrInvalid)
		}
	}

	if len(delta) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after target was fully reconstructed", ErrInvalid, len(delta))
	}

	return target, nil
}

// decodeFields reads, for each field whose mask bit is set in cmd, one
// little-endian byte from delta and ORs it into the result at the
// field's shift. It is used for both the copy offset (four optional
// bytes) and the copy size (three optional bytes).
func decodeFields(cmd byte, delta []byte, fields []maskShift) (uint64, []byte, error) {
	var v uint64
	for _, f := range fields {
		if cmd&f.mask == 0 {
			continue
		}
		if len(delta) == 0 {
			return 0, nil, fmt.Errorf("%w: truncated copy instruction", ErrInvalid)
		}
		v |= uint64(delta[0]) << f.shift
		delta = delta[1:]
	}
	return v, delta, nil
}
