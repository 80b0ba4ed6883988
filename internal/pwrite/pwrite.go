// Package pwrite provides an in-memory, seekable, positionally writable
// byte buffer. The object-file emitter targets it instead of a file, so a
// compiled image never touches disk on the in-memory path.
package pwrite

import (
	"errors"
	"fmt"
	"io"
)

// Buffer grows in 16 KiB steps to keep reallocation churn down while an
// object file is streamed into it.
const growQuantum = 16 * 1024

// ErrWriteBeyondEnd is returned by WriteAt for writes that would extend
// the buffer; positional writes may only patch bytes already written.
var ErrWriteBeyondEnd = errors.New("pwrite: positional write beyond end of buffer")

// Buffer is an in-memory stand-in for an output file.
type Buffer struct {
	data []byte
	n    int // bytes written
	pos  int // current seek position
}

var (
	_ io.Writer   = (*Buffer)(nil)
	_ io.WriterAt = (*Buffer)(nil)
	_ io.Seeker   = (*Buffer)(nil)
)

func (b *Buffer) grow(need int) {
	if need <= cap(b.data) {
		return
	}
	newCap := (need + growQuantum - 1) &^ (growQuantum - 1)
	data := make([]byte, newCap)
	copy(data, b.data[:b.n])
	b.data = data
}

// Write appends p at the current position, extending the buffer as
// needed. Writing after a backward seek overwrites in place.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	b.grow(end)
	if end > len(b.data) {
		b.data = b.data[:cap(b.data)]
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	if end > b.n {
		b.n = end
	}
	return len(p), nil
}

// WriteAt patches bytes at off without moving the position. It must not
// extend the buffer.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > b.n {
		return 0, fmt.Errorf("%w: off=%d len=%d size=%d", ErrWriteBeyondEnd, off, len(p), b.n)
	}
	copy(b.data[off:], p)
	return len(p), nil
}

// Seek sets the position for the next Write.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(b.n) + offset
	default:
		return 0, fmt.Errorf("pwrite: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("pwrite: negative seek position %d", abs)
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written contents. The slice aliases the buffer and is
// only valid until the next write or Reset.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return b.n }

// Reset empties the buffer, retaining capacity.
func (b *Buffer) Reset() {
	b.n = 0
	b.pos = 0
}
