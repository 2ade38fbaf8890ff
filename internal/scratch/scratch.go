// Package scratch implements the fixed-capacity byte buffer shared by
// the streaming pack parser and the archive resume scanner: callers
// maintain (start, end) cursors into a single allocation and compact
// it forward whenever fewer than LowWater bytes remain buffered.
package scratch

import "io"

// Size is the buffer's fixed capacity.
const Size = 64 * 1024

// LowWater is the minimum number of buffered-but-unconsumed bytes the
// parser requires before it is willing to read another object header;
// below this, Buffer.Refill must be called.
const LowWater = 256

// Buffer is a fixed-capacity byte buffer with a [start, end) window of
// valid, unconsumed data. It never grows past Size; Refill compacts
// the unread tail to the front before reading more from the source.
type Buffer struct {
	buf        [Size]byte
	start, end int

	// total is the number of bytes compacted away by Refill, i.e. the
	// absolute stream offset of buf[0].
	total int64
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Len returns the number of unconsumed, buffered bytes.
func (b *Buffer) Len() int { return b.end - b.start }

// Bytes returns the unconsumed window. The slice is only valid until
// the next call to Refill or Advance.
func (b *Buffer) Bytes() []byte { return b.buf[b.start:b.end] }

// Offset returns the absolute stream position of the first unconsumed
// byte (Bytes()[0]).
func (b *Buffer) Offset() int64 { return b.total + int64(b.start) }

// Advance marks n bytes at the front of the window as consumed.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.Len() {
		panic("scratch: Advance out of range")
	}
	b.start += n
}

// SetWindow forces the unconsumed window to buf[start:end], used by
// callers (the delta/zlib paths) that know exactly how many trailing
// bytes a decompressor left unused.
func (b *Buffer) SetWindow(start, end int) {
	b.start, b.end = start, end
}

// Refill compacts any unconsumed bytes to the front of the buffer and
// reads more from r until either the buffer is full or LowWater bytes
// are buffered, whichever comes first. It is a no-op if Len() is
// already >= LowWater. io.EOF from r is never returned: at end of
// stream Refill returns nil, and callers detect it by Len() staying
// below what they need. Any other read error is returned.
func (b *Buffer) Refill(r io.Reader) error {
	if b.Len() >= LowWater {
		return nil
	}

	if b.start > 0 {
		n := copy(b.buf[:], b.buf[b.start:b.end])
		b.total += int64(b.start)
		b.start = 0
		b.end = n
	}

	for b.end < Size {
		n, err := r.Read(b.buf[b.end:])
		b.end += n
		if b.Len() >= LowWater {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// AtEOF reports whether the buffer holds no unconsumed bytes. It does
// not consult the source, so it means end of stream only right after
// a Refill call that left Len() == 0.
func (b *Buffer) AtEOF() bool { return b.Len() == 0 }
