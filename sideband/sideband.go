// Package sideband implements the side-band-64k demultiplexer used by
// the smart-HTTP git protocol to interleave packfile data, progress
// text, and a fatal-error channel inside a single pkt-line stream.
package sideband

import (
	"errors"
	"fmt"
	"io"
)

const (
	bandData     = 1
	bandProgress = 2
	bandError    = 3
)

// Error is returned by Read when the upstream sends a stream id 3
// (fatal error) frame. Its Message is the raw payload of that frame.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sideband: remote error: %s", e.Message)
}

// Reader demultiplexes a side-band-64k stream, exposing only the
// concatenation of stream-1 (pack data) payloads as an io.Reader.
// Stream-2 (progress) payloads are discarded. A stream-3 payload is
// surfaced as an *Error from Read, resolving the open question in
// the reference implementation that silently dropped it.
type Reader struct {
	src io.Reader

	// left is the number of unread bytes remaining in the frame
	// currently being drained.
	left int
	band byte

	lenBuf [4]byte
	done   bool
}

// NewReader wraps src, which must be positioned at the start of a
// side-band-64k pkt-line stream.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Read implements io.Reader. It returns only stream-1 payload bytes.
func (r *Reader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}

	total := 0
	for total < len(p) {
		if r.left == 0 {
			ok, err := r.nextFrame()
			if err != nil {
				return total, err
			}
			if !ok {
				// Flush packet: end of stream.
				r.done = true
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			if r.band != bandData {
				// Drain and discard this whole frame, then loop for the next.
				if err := r.discardFrame(); err != nil {
					return total, err
				}
				continue
			}
		}

		n := len(p) - total
		if n > r.left {
			n = r.left
		}
		read, err := io.ReadFull(r.src, p[total:total+n])
		total += read
		r.left -= read
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// nextFrame reads the next pkt-line length+band header. It returns
// (false, nil) on a flush packet.
func (r *Reader) nextFrame() (bool, error) {
	if _, err := io.ReadFull(r.src, r.lenBuf[:]); err != nil {
		return false, err
	}
	n, err := decodeHexLen(r.lenBuf)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if n < 5 {
		return false, fmt.Errorf("sideband: frame too short to carry a band byte (%d)", n)
	}

	var bandByte [1]byte
	if _, err := io.ReadFull(r.src, bandByte[:]); err != nil {
		return false, err
	}
	r.band = bandByte[0]
	r.left = n - 5

	if r.band == bandError {
		msg := make([]byte, r.left)
		if _, err := io.ReadFull(r.src, msg); err != nil {
			return false, err
		}
		r.left = 0
		return false, &Error{Message: string(msg)}
	}

	return true, nil
}

// discardFrame reads and throws away the remainder of the current
// (non-data) frame.
func (r *Reader) discardFrame() error {
	if r.left == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r.src, int64(r.left))
	r.left = 0
	return err
}

func decodeHexLen(b [4]byte) (int, error) {
	v := 0
	for _, c := range b {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= int(c - '0')
		case c >= 'a' && c <= 'f':
			v |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= int(c-'A') + 10
		default:
			return 0, errors.New("sideband: malformed pkt-line length")
		}
	}
	return v, nil
}
