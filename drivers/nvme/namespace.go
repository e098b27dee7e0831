// Namespace driver: geometry and LBA read/write.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package nvme

import (
	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/drivers/qpair"
)

// ioPageSize bounds a single I/O command's transfer to one DMA page, per
// spec.md §4.4.
const ioPageSize = 4096

// Namespace is the per-NSID driver state within a controller.
type Namespace struct {
	controller *Controller

	nsid     uint32
	nvmSet   uint8
	commandSet uint8

	nsze           uint64
	ncap           uint64
	lbaSize        uint32
	metaSize       uint16
	metaFollowsLBA bool

	ioqpair int
}

// NSID returns the namespace identifier.
func (n *Namespace) NSID() uint32 { return n.nsid }

// LBASize returns the logical block size in bytes.
func (n *Namespace) LBASize() uint32 { return n.lbaSize }

// SizeLBAs returns the namespace size in logical blocks.
func (n *Namespace) SizeLBAs() uint64 { return n.nsze }

func newNamespace(c *Controller, nsid uint32, commandSet uint8) (*Namespace, error) {
	addr, _, err := c.adminRegion.Reserve(4096, 0)
	if err != nil {
		return nil, err
	}
	defer c.adminRegion.Release(addr)

	cmd := &qpair.SubmissionEntry{
		Opcode: OpIdentify,
		PRP1:   uint64(addr),
		NSID:   nsid,
		CDW10:  CNSNamespace,
		CDW11:  (uint32(commandSet) & 0xFF) << 24,
	}
	if _, err := c.adminCommand(cmd); err != nil {
		return nil, err
	}

	data := make([]byte, 4096)
	c.adminRegion.Read(addr, 0, data)

	formatIdx := (data[26] & 0xF) | ((data[26] >> 5 & 0b11) << 4)
	metaFollowsLBA := data[26]&(1<<4) != 0

	lbaf := le32(data[128+4*int(formatIdx):])
	lbaExp := uint8((lbaf >> 16) & 0xFF)

	ns := &Namespace{
		controller:     c,
		nsid:           nsid,
		nvmSet:         data[100],
		commandSet:     commandSet,
		nsze:           le64(data[0:]),
		ncap:           le64(data[8:]),
		lbaSize:        1 << lbaExp,
		metaSize:       uint16(lbaf & 0xFFFF),
		metaFollowsLBA: metaFollowsLBA,
	}

	if err := ns.attachIOQueuePair(); err != nil {
		return nil, err
	}

	return ns, nil
}

// attachIOQueuePair tries to create a dedicated I/O queue pair for the
// namespace; on exhaustion it falls back to round-robin reuse of an
// already-created pair.
func (n *Namespace) attachIOQueuePair() error {
	pair, err := n.controller.CreateIOQueuePair()
	if err == nil {
		if err := n.controller.bringUpIOQueuePair(pair, n.nvmSet, 0); err != nil {
			return err
		}
		n.ioqpair = pair.ID()
		n.controller.rememberIOQueuePair(pair.ID())
		return nil
	}

	if err != errs.ErrOutOfIds {
		return err
	}

	existing, ok := n.controller.nextRoundRobinQueuePair()
	if !ok {
		return err
	}
	n.ioqpair = existing

	return nil
}

// ReadAt reads len(buf) bytes starting at the given byte offset, issuing
// one Read command per DMA page of transfer.
func (n *Namespace) ReadAt(offset uint64, buf []byte) (int, error) {
	return n.transfer(OpRead, offset, buf)
}

// WriteAt writes len(buf) bytes starting at the given byte offset, issuing
// one Write command per DMA page of transfer.
func (n *Namespace) WriteAt(offset uint64, buf []byte) (int, error) {
	return n.transfer(OpWrite, offset, buf)
}

func (n *Namespace) transfer(opcode uint8, offset uint64, buf []byte) (int, error) {
	region := n.controller.ioRegion

	var done int
	for done < len(buf) {
		lba := (offset + uint64(done)) / uint64(n.lbaSize)
		jank := (offset + uint64(done)) - lba*uint64(n.lbaSize)
		remaining := len(buf) - done

		nlb := (uint64(remaining) + jank + uint64(n.lbaSize) - 1) / uint64(n.lbaSize)
		if nlb*uint64(n.lbaSize) > ioPageSize {
			nlb = ioPageSize / uint64(n.lbaSize)
		}

		copySize := int(nlb*uint64(n.lbaSize) - jank)
		if copySize > remaining {
			copySize = remaining
		}

		addr, _, err := region.Reserve(ioPageSize, 0)
		if err != nil {
			return done, err
		}

		rangeCmd := func(op uint8) *qpair.SubmissionEntry {
			return &qpair.SubmissionEntry{
				Opcode: op,
				PRP1:   uint64(addr),
				NSID:   n.nsid,
				CDW10:  uint32(lba),
				CDW11:  uint32(lba >> 32),
				CDW12:  uint32(nlb - 1),
			}
		}

		// A partial-block write must preserve the untouched bytes of the
		// block(s) it targets, so read them in first.
		if opcode == OpWrite && (jank != 0 || uint64(copySize) < nlb*uint64(n.lbaSize)) {
			if _, err := n.controller.ioCommand(n.ioqpair, rangeCmd(OpRead)); err != nil {
				region.Release(addr)
				return done, err
			}
		}

		if opcode == OpWrite {
			region.Write(addr, int(jank), buf[done:done+copySize])
		}

		cc, err := n.controller.ioCommand(n.ioqpair, rangeCmd(opcode))
		if err != nil {
			region.Release(addr)
			return done, err
		}
		if cc.Status() != 0 {
			region.Release(addr)
			return done, errs.CommandStatus(cc.Status())
		}

		if opcode == OpRead {
			if err := region.Read(addr, int(jank), buf[done:done+copySize]); err != nil {
				region.Release(addr)
				return done, err
			}
		}

		region.Release(addr)
		done += copySize
	}

	return done, nil
}
