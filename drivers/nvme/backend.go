// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package nvme

import (
	"sync"

	"github.com/arctan-os/kdrivers/dma"
	"github.com/arctan-os/kdrivers/drivers/qpair"
)

// backend stands in for the physical controller on the other end of the
// queue pairs. A real chip executes submitted commands over its own
// silicon and DMAs results back into host memory; here that execution is
// modeled directly against a virtual disk so the rest of this module (and
// its tests) can drive the full NVMe protocol without real hardware. It
// reads and writes command buffers through the same dma.Region the host
// side allocated them from, exactly the access a bus-mastering device has.
type backend struct {
	mu sync.Mutex

	controllerID   uint16
	version        uint32
	ctratt         uint32
	controllerType uint8
	mdts           uint8

	// maxIOQueues, when non-zero, caps the 0's-based queue counts Set
	// Features Feature 0x07 ever grants, modeling a device whose real
	// queue capacity is narrower than whatever the host asks for.
	maxIOQueues uint16

	// commandSetVectors models the "I/O Command Set Vector" data returned
	// by Identify CNS=0x1C: index i is the 64-bit set of command sets
	// bound to entry i. Only used when Controller.CSS advertises
	// IO-command-set-selection (CAP.CSS bit 6).
	commandSetVectors [512]uint64

	namespaces map[uint32]*backendNamespace
}

type backendNamespace struct {
	nsze           uint64
	ncap           uint64
	lbaSize        uint32
	metaSize       uint16
	formatIdx      uint8
	metaFollowsLBA bool
	nvmSet         uint8
	data           []byte
}

func newBackend(controllerID uint16, version uint32, ctratt uint32, controllerType uint8, mdts uint8) *backend {
	return &backend{
		controllerID:   controllerID,
		version:        version,
		ctratt:         ctratt,
		controllerType: controllerType,
		mdts:           mdts,
		namespaces:     make(map[uint32]*backendNamespace),
	}
}

// addNamespace registers a simulated namespace backed by a zeroed byte
// array sized nsze*lbaSize, reachable by identify/read/write commands.
func (b *backend) addNamespace(nsid uint32, ns *backendNamespace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.namespaces[nsid] = ns
}

func (b *backend) setCommandSetVector(index int, mask uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commandSetVectors[index] = mask
}

// identifyControllerData renders the fixed-offset fields a real Identify
// Controller buffer would carry, at the byte offsets spec.md §4.3 reads:
// MDTS (77), CNTLID (78:79), VER (80:83), CTRATT (96:99), controller type
// (111).
func (b *backend) identifyControllerData() []byte {
	buf := make([]byte, 4096)
	buf[77] = b.mdts
	putUint16(buf[78:], b.controllerID)
	putUint32(buf[80:], b.version)
	putUint32(buf[96:], b.ctratt)
	buf[111] = b.controllerType
	return buf
}

// identifyNamespaceData renders an Identify Namespace buffer at the byte
// offsets namespace.c and spec.md §4.4 read: nsze (0:7), ncap (8:15), byte
// 26 (format index + meta-follows-lba), byte 100 (nvm set), and an LBAF
// record at 128+4*formatIdx whose bits 16:23 are log2(lba_size) and bits
// 0:15 are the metadata size.
func (b *backend) identifyNamespaceData(ns *backendNamespace) []byte {
	buf := make([]byte, 4096)
	putUint64(buf[0:], ns.nsze)
	putUint64(buf[8:], ns.ncap)

	b26 := ns.formatIdx & 0xF
	b26 |= (ns.formatIdx >> 4 & 0b11) << 5
	if ns.metaFollowsLBA {
		b26 |= 1 << 4
	}
	buf[26] = b26

	buf[100] = ns.nvmSet

	lbaExp := log2(ns.lbaSize)
	var lbaf uint32
	lbaf |= uint32(ns.metaSize) & 0xFFFF
	lbaf |= uint32(lbaExp) << 16
	putUint32(buf[128+4*int(ns.formatIdx):], lbaf)

	return buf
}

func log2(v uint32) uint8 {
	var n uint8
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func putUint16(buf []byte, v uint16) { buf[0] = byte(v); buf[1] = byte(v >> 8) }
func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}
func putUint64(buf []byte, v uint64) {
	putUint32(buf[0:], uint32(v))
	putUint32(buf[4:], uint32(v>>32))
}

// execute interprets cmd against this simulated device and returns the
// status and DW0 fields a real completion would carry. region is whichever
// DMA region cmd's PRP1 (and, for I/O, MPTR) addresses were drawn from.
func (b *backend) execute(region *dma.Region, queue int, cmd *qpair.SubmissionEntry) (status uint16, dw0 uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if queue == qpair.AdminQueue {
		return b.executeAdmin(region, cmd)
	}

	return b.executeIO(region, cmd)
}

func (b *backend) executeAdmin(region *dma.Region, cmd *qpair.SubmissionEntry) (status uint16, dw0 uint32) {
	switch cmd.Opcode {
	case OpIdentify:
		cns := cmd.CDW10 & 0xFF
		switch cns {
		case 0x01:
			region.Write(uintptr(cmd.PRP1), 0, b.identifyControllerData())
		case 0x00:
			ns, ok := b.namespaces[cmd.NSID]
			if !ok {
				return uint16(StatusInvalidField), 0
			}
			region.Write(uintptr(cmd.PRP1), 0, b.identifyNamespaceData(ns))
		case 0x07:
			cs := uint8((cmd.CDW11 >> 24) & 0xFF)
			ids := make([]byte, 4096)
			i := 0
			for nsid, ns := range b.namespaces {
				if ns.nvmSet != cs {
					continue
				}
				putUint32(ids[i*4:], nsid)
				i++
				if i >= 512 {
					break
				}
			}
			region.Write(uintptr(cmd.PRP1), 0, ids)
		case 0x1C:
			buf := make([]byte, 4096)
			for i, v := range b.commandSetVectors {
				putUint64(buf[i*8:], v)
			}
			region.Write(uintptr(cmd.PRP1), 0, buf)
		default:
			// CNS values the upstream driver stamps but does not yet
			// consume (0x02, 0x05, 0x06, 0x08): acknowledged, no data.
		}
		return 0, 0

	case OpSetFeatures:
		feature := cmd.CDW10 & 0xFF
		switch feature {
		case FeatureNumQueues:
			numSub := cmd.CDW11 & 0xFFFF
			numComp := (cmd.CDW11 >> 16) & 0xFFFF

			cap := uint32(qpair.MaxIOQueues - 1)
			if b.maxIOQueues != 0 && uint32(b.maxIOQueues-1) < cap {
				cap = uint32(b.maxIOQueues - 1)
			}
			if numSub > cap {
				numSub = cap
			}
			if numComp > cap {
				numComp = cap
			}
			return 0, numSub | (numComp << 16)
		case FeatureCommandSetSelect:
			i := cmd.CDW11 & 0xFF
			return 0, i
		}
		return 0, 0

	case OpCreateIOCompletionQueue, OpCreateIOSubmissionQueue:
		return 0, 0
	}

	return uint16(StatusInvalidOpcode), 0
}

func (b *backend) executeIO(region *dma.Region, cmd *qpair.SubmissionEntry) (status uint16, dw0 uint32) {
	ns, ok := b.namespaces[cmd.NSID]
	if !ok {
		return uint16(StatusInvalidNamespace), 0
	}

	lba := uint64(cmd.CDW10) | (uint64(cmd.CDW11) << 32)
	nlb := uint64(cmd.CDW12&0xFFFF) + 1
	off := lba * uint64(ns.lbaSize)
	length := int(nlb * uint64(ns.lbaSize))

	if off+uint64(length) > uint64(len(ns.data)) {
		return uint16(StatusLBAOutOfRange), 0
	}

	switch cmd.Opcode {
	case OpRead:
		region.Write(uintptr(cmd.PRP1), 0, ns.data[off:off+uint64(length)])
	case OpWrite:
		tmp := make([]byte, length)
		region.Read(uintptr(cmd.PRP1), 0, tmp)
		copy(ns.data[off:], tmp)
	default:
		return uint16(StatusInvalidOpcode), 0
	}

	return 0, 0
}
