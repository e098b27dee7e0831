// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import "unsafe"

// block tracks one free or used range within a Region's backing buffer.
type block struct {
	addr uintptr
	size uint
	res  bool // true if obtained via Reserve rather than Alloc
}

func (b *block) slice() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(b.addr)), b.size)
}

func (b *block) read(off uint, buf []byte) {
	copy(buf, b.slice()[off:])
}

func (b *block) write(off uint, buf []byte) {
	copy(b.slice()[off:], buf)
}
