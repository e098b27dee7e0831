// Generic fixed-capacity ring buffer over a DMA-backed byte region
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ring implements the fixed-capacity slot allocator shared by the
// NVMe submission and completion queues: a contiguous DMA region is carved
// into entrySize slots, and allocate/free track which slots are currently
// owned by an in-flight command. It generalizes the buffer descriptor ring
// of soc/nxp/enet (push/pop/next over a fixed-size descriptor array) and
// the split virtqueue ring shape of virtio.VirtualQueue into a bare
// allocator that the queue-pair layer stamps NVMe-specific entry layouts
// onto.
package ring

import (
	"sync"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/dma"
)

// Ring is a fixed-capacity array of entrySize-byte slots backed by a single
// contiguous DMA allocation. Reserve, Release and Next serialize on the
// ring's mutex; Entry hands out a slot's bytes without locking (the device
// enforces mutual exclusion through doorbell ordering, not through the ring
// memory).
type Ring struct {
	region *dma.Region

	addr      uintptr
	buf       []byte
	entrySize int
	capacity  int

	mu   sync.Mutex
	used []bool
	head int
	tail int
}

// Allocate reserves a contiguous DMA buffer of capacity*entrySize bytes in
// region and returns a Ring managing it, zeroed.
func Allocate(region *dma.Region, capacity int, entrySize int) (*Ring, error) {
	if capacity <= 0 || entrySize <= 0 {
		return nil, errs.ErrBadArgument
	}

	addr, buf, err := region.Reserve(capacity*entrySize, 0)
	if err != nil {
		return nil, err
	}

	for i := range buf {
		buf[i] = 0
	}

	return &Ring{
		region:    region,
		addr:      addr,
		buf:       buf,
		entrySize: entrySize,
		capacity:  capacity,
		used:      make([]bool, capacity),
	}, nil
}

// Free releases the ring's backing DMA buffer.
func (r *Ring) Free() {
	r.region.Release(r.addr)
}

// Addr returns the physical address of the ring's backing buffer, suitable
// for programming into ASQ/ACQ or a Create Queue command's PRP1.
func (r *Ring) Addr() uintptr {
	return r.addr
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Reserve claims the next free slot in submission order and returns its
// index. Returns ErrOutOfMemory if the ring is full.
func (r *Ring) Reserve() (slot int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.capacity; i++ {
		idx := (r.tail + i) % r.capacity
		if !r.used[idx] {
			r.used[idx] = true
			r.tail = (idx + 1) % r.capacity
			return idx, nil
		}
	}

	return 0, errs.ErrOutOfMemory
}

// Release returns a previously reserved slot to the free pool.
func (r *Ring) Release(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot >= 0 && slot < r.capacity {
		r.used[slot] = false
	}
}

// Entry returns the raw byte slice backing the given slot, for encoding or
// decoding an NVMe submission/completion entry in place.
func (r *Ring) Entry(slot int) []byte {
	off := slot * r.entrySize
	return r.buf[off : off+r.entrySize]
}

// Next returns the current completion head slot and advances the head,
// reporting whether that advance wrapped the ring (crossed back to
// slot 0), which callers use to invert a phase bit.
func (r *Ring) Next() (slot int, wrapped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot = r.head
	r.head = (r.head + 1) % r.capacity
	wrapped = r.head == 0

	return slot, wrapped
}

// Head returns the current completion head index without advancing it.
func (r *Ring) Head() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.head
}
