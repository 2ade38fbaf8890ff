// Package zlibwindow adapts a scratch.Buffer plus its backing source
// into the io.Reader+io.ByteReader pair that compress/flate uses
// directly, without wrapping it in its own buffering layer. That
// matters because it makes zlib's byte consumption exact: once a
// zlib stream has been fully read, the scratch buffer's cursor points
// at precisely the first byte after it, with nothing else buffered
// anywhere in between. Both the pack parser and the archive resume
// scanner rely on this to track object boundaries.
package zlibwindow

import (
	"io"

	"github.com/coldpath/gitalarm/internal/scratch"
)

// Window is an io.Reader and io.ByteReader over a scratch.Buffer,
// refilling it from Src on demand.
type Window struct {
	Buf *scratch.Buffer
	Src io.Reader
}

// New returns a Window reading from buf, refilling from src.
func New(buf *scratch.Buffer, src io.Reader) *Window {
	return &Window{Buf: buf, Src: src}
}

func (w *Window) ReadByte() (byte, error) {
	if w.Buf.Len() == 0 {
		if err := w.Buf.Refill(w.Src); err != nil {
			return 0, err
		}
		if w.Buf.Len() == 0 {
			return 0, io.EOF
		}
	}
	b := w.Buf.Bytes()[0]
	w.Buf.Advance(1)
	return b, nil
}

func (w *Window) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.Buf.Len() == 0 {
		if err := w.Buf.Refill(w.Src); err != nil {
			return 0, err
		}
		if w.Buf.Len() == 0 {
			return 0, io.EOF
		}
	}
	n := copy(p, w.Buf.Bytes())
	w.Buf.Advance(n)
	return n, nil
}
