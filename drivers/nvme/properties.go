// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package nvme

import (
	"time"

	"github.com/arctan-os/kdrivers/internal/reg"
)

// Register byte offsets within the controller's memory-mapped property
// page, matching the NVMe Base Specification's controller register layout
// (and original_source/include/drivers/sysdev/nvme's property struct).
const (
	offCAP  = 0x00
	offVS   = 0x08
	offCC   = 0x14
	offCSTS = 0x1C
	offAQA  = 0x24
	offASQ  = 0x28
	offACQ  = 0x30

	// propsSize covers the register bank plus room for up to 64 I/O
	// queues' doorbell pairs at the maximum doorbell stride (4 << 15).
	propsSize = 0x1000 + 130*(4<<15)
)

// properties is a simulated memory-mapped NVMe controller register page.
// Real hardware maps this window over a PCI BAR; this module backs it with
// a plain allocated buffer so the same reg.Get32/Set32/Get64 accesses used
// on bare metal also work hosted.
type properties struct {
	base uintptr
	buf  []byte // keeps the backing memory alive
}

func newProperties() *properties {
	buf := make([]byte, propsSize)
	return &properties{
		base: reg.AddrOf(buf),
		buf:  buf,
	}
}

func (p *properties) capMQES() uint64   { return reg.Get64(p.base+offCAP, 0, 0xFFFF) }
func (p *properties) capDSTRD() uint    { return uint(reg.Get64(p.base+offCAP, 32, 0xF)) }
func (p *properties) capCSS() uint8     { return uint8(reg.Get64(p.base+offCAP, 37, 0xFF)) }
func (p *properties) capMPSMIN() uint64 { return reg.Get64(p.base+offCAP, 48, 0xF) }

func (p *properties) setCAP(mqes uint64, dstrd uint, css uint8, mpsmin uint64) {
	var v uint64
	v |= mqes & 0xFFFF
	v |= uint64(dstrd&0xF) << 32
	v |= uint64(css) << 37
	v |= (mpsmin & 0xF) << 48
	reg.Write64(p.base+offCAP, v)
}

func (p *properties) ccEnable() bool     { return reg.Get32(p.base+offCC, 0, 1) == 1 }
// setCCEnable also plays the simulated controller's part: CSTS.RDY follows
// CC.EN as soon as it changes.
func (p *properties) setCCEnable(v bool) {
	if v {
		reg.Set32(p.base+offCC, 0)
		reg.Set32(p.base+offCSTS, 0)
	} else {
		reg.Clear32(p.base+offCC, 0)
		reg.Clear32(p.base+offCSTS, 0)
	}
}

func (p *properties) setCCCSS(css uint32)   { reg.SetN32(p.base+offCC, 4, 0b111, css) }
func (p *properties) setCCMPS(mps uint32)   { reg.SetN32(p.base+offCC, 7, 0b1111, mps) }
func (p *properties) setCCAMS(ams uint32)   { reg.SetN32(p.base+offCC, 11, 0b111, ams) }
func (p *properties) setCCQueueEntrySizes(iosqes, iocqes uint32) {
	reg.SetN32(p.base+offCC, 16, 0xF, iosqes)
	reg.SetN32(p.base+offCC, 20, 0xF, iocqes)
}

func (p *properties) ccCSS() uint32    { return reg.Get32(p.base+offCC, 4, 0b111) }
func (p *properties) ccIOSQES() uint32 { return reg.Get32(p.base+offCC, 16, 0xF) }
func (p *properties) ccIOCQES() uint32 { return reg.Get32(p.base+offCC, 20, 0xF) }

func (p *properties) aqaSubLen() int  { return int(reg.Get32(p.base+offAQA, 0, 0xFFF)) + 1 }
func (p *properties) aqaCompLen() int { return int(reg.Get32(p.base+offAQA, 16, 0xFFF)) + 1 }

func (p *properties) cstsReady() bool { return reg.Get32(p.base+offCSTS, 0, 1) == 1 }

func (p *properties) waitReady(want bool, timeout time.Duration) bool {
	var v uint32
	if want {
		v = 1
	}
	return reg.WaitFor32(timeout, p.base+offCSTS, 0, 1, v)
}

func (p *properties) setAQA(subLen, compLen int) {
	var v uint32
	v |= uint32(subLen-1) & 0xFFF
	v |= (uint32(compLen-1) & 0xFFF) << 16
	reg.Write32(p.base+offAQA, v)
}

func (p *properties) setASQ(addr uintptr) { reg.Write64(p.base+offASQ, uint64(addr)) }
func (p *properties) setACQ(addr uintptr) { reg.Write64(p.base+offACQ, uint64(addr)) }
