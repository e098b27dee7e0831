// First-fit allocator for physically contiguous DMA buffers
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides the physical memory allocator the NVMe driver layers
// use for submission/completion queue pages and per-command scratch
// buffers. Bus enumeration and page-table mapping are supplied by the host
// (phys_alloc/hhdm_translate/page_map are external collaborators); this
// package only tracks which byte ranges of a pre-allocated, page-aligned
// backing region are in use, exactly as the upstream first-fit allocator
// it is ported from.
package dma

import (
	"container/list"
	"sync"
	"unsafe"

	"github.com/arctan-os/kdrivers/drivers/errs"
)

// Region represents a contiguous memory range usable for DMA. The backing
// storage is a single Go byte slice allocated up front and never resized:
// Go's garbage collector does not relocate heap objects, so addresses
// handed out by Reserve/Alloc remain stable for the region's lifetime.
type Region struct {
	sync.Mutex

	backing []byte
	start   uintptr
	size    uint

	freeBlocks *list.List
	usedBlocks map[uintptr]*block
}

// NewRegion allocates a backing buffer of size bytes and returns a Region
// managing it with a first-fit allocator.
func NewRegion(size uint) *Region {
	backing := make([]byte, size)
	start := uintptr(unsafe.Pointer(&backing[0]))

	r := &Region{
		backing:    backing,
		start:      start,
		size:       size,
		freeBlocks: list.New(),
		usedBlocks: make(map[uintptr]*block),
	}

	r.freeBlocks.PushFront(&block{addr: start, size: size})

	return r
}

// Start returns the region's base address.
func (r *Region) Start() uintptr {
	return r.start
}

// End returns the address one past the region's last byte.
func (r *Region) End() uintptr {
	return r.start + uintptr(r.size)
}

// Size returns the region's total size in bytes.
func (r *Region) Size() uint {
	return r.size
}

// Reserve allocates size bytes with optional alignment (0 forces word
// alignment) and returns the allocation address along with a byte slice
// over it. Reserved buffers are uninitialized.
func (r *Region) Reserve(size int, align int) (addr uintptr, buf []byte, err error) {
	if size == 0 {
		return 0, nil, errs.ErrBadArgument
	}

	r.Lock()
	defer r.Unlock()

	b, err := r.alloc(uint(size), uint(align))
	if err != nil {
		return 0, nil, err
	}

	b.res = true
	r.usedBlocks[b.addr] = b

	return b.addr, b.slice(), nil
}

// Reserved reports whether buf lies within this region.
func (r *Region) Reserved(buf []byte) (res bool, addr uintptr) {
	if len(buf) == 0 {
		return false, 0
	}

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	res = ptr >= r.start && ptr+uintptr(len(buf)) <= r.End()

	return res, ptr
}

// Alloc copies buf into a freshly allocated block and returns its address.
// If buf was itself produced by Reserve, its existing address is returned
// without copying.
func (r *Region) Alloc(buf []byte, align int) (addr uintptr, err error) {
	size := len(buf)
	if size == 0 {
		return 0, errs.ErrBadArgument
	}

	if res, a := r.Reserved(buf); res {
		return a, nil
	}

	r.Lock()
	defer r.Unlock()

	b, err := r.alloc(uint(size), uint(align))
	if err != nil {
		return 0, err
	}

	b.write(0, buf)
	r.usedBlocks[b.addr] = b

	return b.addr, nil
}

// Read copies len(buf) bytes from addr+off into buf. The block must have
// been allocated with Alloc or Reserve.
func (r *Region) Read(addr uintptr, off int, buf []byte) error {
	if addr == 0 || len(buf) == 0 {
		return nil
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return errs.ErrBadArgument
	}

	if uint(off+len(buf)) > b.size {
		return errs.ErrBadArgument
	}

	b.read(uint(off), buf)

	return nil
}

// Write copies buf into addr+off. The block must have been allocated with
// Alloc or Reserve.
func (r *Region) Write(addr uintptr, off int, buf []byte) error {
	if addr == 0 || len(buf) == 0 {
		return nil
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return errs.ErrBadArgument
	}

	if uint(off+len(buf)) > b.size {
		return errs.ErrBadArgument
	}

	b.write(uint(off), buf)

	return nil
}

// Free releases a block previously returned by Alloc.
func (r *Region) Free(addr uintptr) {
	r.freeBlock(addr, false)
}

// Release releases a block previously returned by Reserve.
func (r *Region) Release(addr uintptr) {
	r.freeBlock(addr, true)
}

func (r *Region) defrag() {
	var prev *block

	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prev != nil && prev.addr+uintptr(prev.size) == b.addr {
			prev.size += b.size
			defer r.freeBlocks.Remove(e)
			continue
		}

		prev = b
	}
}

func (r *Region) alloc(size uint, align uint) (*block, error) {
	var e *list.Element
	var free *block
	var pad uint

	if align == 0 {
		align = 4
	}

	for e = r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		pad = uint(-int64(b.addr)) & (align - 1)

		if b.size >= size+pad {
			free = b
			break
		}
	}

	if free == nil {
		return nil, errs.ErrOutOfMemory
	}

	defer r.freeBlocks.Remove(e)

	total := size + pad

	if rem := free.size - total; rem != 0 {
		after := &block{addr: free.addr + uintptr(total), size: rem}
		free.size = total
		r.freeBlocks.InsertAfter(after, e)
	}

	if pad != 0 {
		before := &block{addr: free.addr, size: pad}
		free.addr += uintptr(pad)
		free.size -= pad
		r.freeBlocks.InsertBefore(before, e)
	}

	return free, nil
}

func (r *Region) free(used *block) {
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > used.addr {
			r.freeBlocks.InsertBefore(used, e)
			r.defrag()
			return
		}
	}

	r.freeBlocks.PushBack(used)
}

func (r *Region) freeBlock(addr uintptr, res bool) {
	if addr == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok || b.res != res {
		return
	}

	r.free(b)
	delete(r.usedBlocks, addr)
}
