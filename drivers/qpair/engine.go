// Queue-pair engine: submission/completion rings, doorbells, CID, phase
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package qpair implements the NVMe queue-pair protocol engine: creating
// and deleting submission/completion ring pairs, stamping and decoding
// command identifiers, submitting commands and polling for their matching
// completion. It is the host-side half of the protocol; nothing in this
// package executes a command's semantics — that is the controller's
// property of owning real (or, in this module, simulated) hardware on the
// other end of the rings. Grounded on the submit/poll pair in
// sysdev/nvme/pci.c (nvme_pci_submit_command, nvme_pci_poll_completion)
// and the ring allocator shape of soc/nxp/enet's buffer descriptor rings.
package qpair

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/arctan-os/kdrivers/dma"
	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/drivers/ring"
	"github.com/arctan-os/kdrivers/internal/reg"
)

// AdminQueue is the sentinel queue identifier for the single admin pair.
const AdminQueue = -1

// MaxIOQueues bounds the id bitmap to 64 bits, per spec: ids run 0..63.
const MaxIOQueues = 64

// Pair is one submission/completion ring pair together with its phase and
// doorbell addresses. The zero value is not usable; construct through
// Engine.CreateAdmin or Engine.CreateIOQueuePair.
type Pair struct {
	id    int
	sub   *ring.Ring
	comp  *ring.Ring
	phase uint32 // 0 or 1, accessed via sync/atomic

	subDoorbell  uintptr
	compDoorbell uintptr
}

// ID returns the pair's queue identifier (AdminQueue or 0..63).
func (p *Pair) ID() int {
	return p.id
}

// SubAddr returns the physical address of the pair's submission ring,
// suitable for programming into ASQ or a Create Queue command's PRP1.
func (p *Pair) SubAddr() uintptr {
	return p.sub.Addr()
}

// CompAddr returns the physical address of the pair's completion ring,
// suitable for programming into ACQ or a Create Queue command's PRP1.
func (p *Pair) CompAddr() uintptr {
	return p.comp.Addr()
}

// Engine owns every queue pair attached to one controller: the admin pair,
// the set of I/O pairs, and the id allocator guarding both.
type Engine struct {
	mu sync.Mutex

	admin *Pair
	io    map[int]*Pair

	idBitmap uint64

	propsBase uintptr
	dstrd     uint
}

// NewEngine returns an Engine addressing doorbells relative to propsBase
// with the given CAP.DSTRD doorbell stride.
func NewEngine(propsBase uintptr, dstrd uint) *Engine {
	return &Engine{
		io:        make(map[int]*Pair),
		idBitmap:  ^uint64(0),
		propsBase: propsBase,
		dstrd:     dstrd,
	}
}

func sqDoorbell(base uintptr, dstrd uint, n int) uintptr {
	return base + 0x1000 + uintptr(2*n)*(4<<dstrd)
}

func cqDoorbell(base uintptr, dstrd uint, n int) uintptr {
	return base + 0x1000 + uintptr(2*n+1)*(4<<dstrd)
}

func (e *Engine) newPair(id int, region *dma.Region, subLen, compLen int) (*Pair, error) {
	sub, err := ring.Allocate(region, subLen, SubmissionEntrySize)
	if err != nil {
		return nil, err
	}

	comp, err := ring.Allocate(region, compLen, CompletionEntrySize)
	if err != nil {
		sub.Free()
		return nil, err
	}

	n := id + 1

	return &Pair{
		id:           id,
		sub:          sub,
		comp:         comp,
		phase:        1,
		subDoorbell:  sqDoorbell(e.propsBase, e.dstrd, n),
		compDoorbell: cqDoorbell(e.propsBase, e.dstrd, n),
	}, nil
}

// CreateAdmin allocates the admin submission/completion rings over region
// and installs them as the engine's admin pair.
func (e *Engine) CreateAdmin(region *dma.Region, subLen, compLen int) (*Pair, error) {
	if subLen <= 0 || compLen <= 0 {
		return nil, errs.ErrBadArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pair, err := e.newPair(AdminQueue, region, subLen, compLen)
	if err != nil {
		return nil, err
	}

	e.admin = pair

	return pair, nil
}

// CreateIOQueuePair allocates a submission ring of subLen entries and a
// completion ring of compLen entries, and attaches them under the lowest
// available I/O queue id.
func (e *Engine) CreateIOQueuePair(region *dma.Region, subLen, compLen int) (*Pair, error) {
	if subLen <= 0 || compLen <= 0 {
		return nil, errs.ErrBadArgument
	}

	e.mu.Lock()

	if e.idBitmap == 0 {
		e.mu.Unlock()
		return nil, errs.ErrOutOfIds
	}

	id := bits.TrailingZeros64(e.idBitmap)
	e.idBitmap &^= 1 << uint(id)
	e.mu.Unlock()

	pair, err := e.newPair(id, region, subLen, compLen)
	if err != nil {
		e.mu.Lock()
		e.idBitmap |= 1 << uint(id)
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	e.io[id] = pair
	e.mu.Unlock()

	return pair, nil
}

// DeleteIOQueuePair releases an I/O pair's rings and returns its id to the
// allocator.
func (e *Engine) DeleteIOQueuePair(id int) error {
	e.mu.Lock()
	pair, ok := e.io[id]
	if !ok {
		e.mu.Unlock()
		return errs.ErrNoSuchQueue
	}
	delete(e.io, id)
	e.idBitmap |= 1 << uint(id)
	e.mu.Unlock()

	pair.sub.Free()
	pair.comp.Free()

	return nil
}

// ResetIDs clears the allocator so every id (0..63) is available again, and
// drops the I/O pair table. Used during controller reset.
func (e *Engine) ResetIDs() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.idBitmap = ^uint64(0)
	e.io = make(map[int]*Pair)
	e.admin = nil
}

// PairFor looks up the admin pair (queue == AdminQueue) or an I/O pair by
// id.
func (e *Engine) PairFor(queue int) (*Pair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if queue == AdminQueue {
		return e.admin, e.admin != nil
	}

	p, ok := e.io[queue]
	return p, ok
}

// stampCID encodes the correlation id for a command about to be submitted
// on the given queue at submission-ring slot ptr.
func stampCID(queue int, ptr int) uint16 {
	if queue == AdminQueue {
		return (1 << 15) | uint16(ptr&0xFF)
	}
	return uint16(queue&0x3F) | uint16((ptr&0xFF)<<6)
}

// decodeCID recovers the queue id and submission slot from a command's
// correlation id.
func decodeCID(cid uint16) (queue int, ptr int) {
	if (cid>>15)&1 == 1 {
		return AdminQueue, int(cid & 0xFF)
	}
	return int(cid & 0x3F), int((cid >> 6) & 0xFF)
}

// Submit stamps cmd's CID, writes it into the next free submission slot
// and rings the submission doorbell.
func (e *Engine) Submit(queue int, cmd *SubmissionEntry) error {
	pair, ok := e.PairFor(queue)
	if !ok {
		return errs.ErrNoSuchQueue
	}

	ptr, err := pair.sub.Reserve()
	if err != nil {
		return err
	}

	cmd.CID = stampCID(queue, ptr)
	copy(pair.sub.Entry(ptr), encodeSubmission(cmd))

	reg.Write32(pair.subDoorbell, uint32(ptr+1))

	return nil
}

// Poll busy-waits for the completion matching cmd's CID, advances the
// completion head (inverting phase on wraparound), rings the completion
// doorbell and frees the submission slot cmd occupied.
func (e *Engine) Poll(cmd *SubmissionEntry) (*CompletionEntry, error) {
	queue, submissionPtr := decodeCID(cmd.CID)

	pair, ok := e.PairFor(queue)
	if !ok {
		return nil, errs.ErrNoSuchQueue
	}

	expectedPhase := atomic.LoadUint32(&pair.phase)

	var entry CompletionEntry
	for {
		head := pair.comp.Head()
		entry = decodeCompletion(pair.comp.Entry(head))

		if entry.Phase() == expectedPhase && entry.CID == cmd.CID {
			break
		}
	}

	slot, wrapped := pair.comp.Next()
	_ = slot

	if wrapped {
		atomic.StoreUint32(&pair.phase, expectedPhase^1)
	}

	reg.Write32(pair.compDoorbell, uint32(pair.comp.Head()))

	pair.sub.Release(submissionPtr)

	return &entry, nil
}

// WriteCompletion is the device-side half of the protocol: it deposits a
// completion entry into pair's completion ring at the current tail and is
// used by a simulated backend standing in for real controller hardware,
// which otherwise would write this entry over DMA on its own.
func (e *Engine) WriteCompletion(queue int, cid uint16, status uint16, dw0 uint32) error {
	pair, ok := e.PairFor(queue)
	if !ok {
		return errs.ErrNoSuchQueue
	}

	phase := atomic.LoadUint32(&pair.phase)

	entry := CompletionEntry{
		DW0:         dw0,
		CID:         cid,
		StatusPhase: uint16(phase&1) | (status << 1),
	}

	head := pair.comp.Head()
	copy(pair.comp.Entry(head), encodeCompletion(&entry))

	return nil
}
