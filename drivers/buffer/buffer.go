// RAM-backed buffer file: a fixed-size, zero-initialized in-memory region
// addressable through plain offset/length read and write operations.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package buffer implements a RAM-backed file suitable for registering
// against the filesystem switch wherever something needs a plain
// in-memory scratch region rather than a backing block device (boot
// arguments, a scratch pad for a driver under test). Grounded on
// original_source/src/c/sysfs/buffer.c.
package buffer

import (
	"io"
	"sync"
)

// DefaultSize is used by New when no explicit size is given, per
// buffer_init falling back to ARC_STD_BUFF_SIZE.
const DefaultSize = 4096

// Buffer is a fixed-size, zero-initialized RAM region, per buffer_init's
// alloc+memset and buffer_uninit's matching free.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

// New allocates a zeroed buffer of size bytes, or DefaultSize if size <= 0.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// Size reports the buffer's fixed capacity, per buffer_stat.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.buf))
}

// ReadAt copies min(len(p), size-offset) bytes starting at offset into p,
// returning 0 once offset is at or past the end, per buffer_read's
// wanted/accessible/delta bounds arithmetic (expressed here with a plain
// bounded copy rather than the original's explicit delta subtraction,
// since both compute the same clamped length).
func (b *Buffer) ReadAt(offset int64, p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 || offset >= int64(len(b.buf)) {
		return 0, nil
	}
	return copy(p, b.buf[offset:]), nil
}

// WriteAt copies min(len(p), size-offset) bytes from p starting at offset,
// per buffer_write's identical bounds arithmetic.
func (b *Buffer) WriteAt(offset int64, p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 || offset >= int64(len(b.buf)) {
		return 0, nil
	}
	return copy(b.buf[offset:], p), nil
}

// Handle is a seekable cursor over a Buffer, the shape the rest of this
// module's drivers expect from a vfs.File (Read/Write/Seek/Close), per
// buffer_seek's no-op cursor-move notification.
type Handle struct {
	buffer *Buffer
	offset int64
}

// Open returns a fresh cursor over b, starting at offset 0.
func (b *Buffer) Open() *Handle {
	return &Handle{buffer: b}
}

func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.buffer.ReadAt(h.offset, p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	h.offset += int64(n)
	return n, nil
}

func (h *Handle) Write(p []byte) (int, error) {
	n, err := h.buffer.WriteAt(h.offset, p)
	h.offset += int64(n)
	return n, err
}

func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		h.offset = offset
	case io.SeekCurrent:
		h.offset += offset
	case io.SeekEnd:
		h.offset = h.buffer.Size() + offset
	}
	return h.offset, nil
}

// Close is a no-op: per buffer_seek's comment, moving or closing the
// cursor has nothing further to notify the backing RAM region of.
func (h *Handle) Close() error { return nil }
