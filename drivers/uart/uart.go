// Ancillary UART stub: a software-simulated serial port register bank,
// polled the way imx6.UART polls USR2's transmitter/receiver status bits
// around real UTXD/URXD accesses.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uart stands in for a hardware UART under test: register state
// lives in a plain allocated page (no PCI BAR or SoC MMIO region exists
// here), read and written through the same internal/reg primitives a real
// peripheral driver uses, so the poll idiom itself is exercised even
// without real silicon underneath it. Grounded on imx6/uart.go's
// UCR1/USR2 register layout and its transmit-ready poll before each UTXD
// write.
package uart

import (
	"time"

	"github.com/arctan-os/kdrivers/internal/reg"
)

// Register byte offsets, matching imx6/uart.go's UTXD/URXD/USR2 layout.
const (
	offUTXD = 0x40
	offURXD = 0x00
	offUSR2 = 0x98

	usr2TXDC = 3 // transmitter complete
	usr2RDR  = 0 // receiver ready

	pageSize = 0x100
)

// UART is a software-simulated serial port: each Write lands one byte in
// UTXD behind a TXDC poll and loops it back into an internal FIFO so Read
// can observe it through URXD/USR2's RDR bit, the same register dance
// imx6.UART.Tx/Rx perform against real hardware.
type UART struct {
	base uintptr
	buf  []byte

	fifo []byte
}

// New returns a UART with its transmitter marked ready, per UCR1_UARTEN
// bring-up leaving USR2.TXDC set once enabled.
func New() *UART {
	buf := make([]byte, pageSize)
	u := &UART{base: reg.AddrOf(buf), buf: buf}
	reg.Set32(u.base+offUSR2, usr2TXDC)
	return u
}

// Write transmits p one byte at a time through UTXD, polling USR2's TXDC
// bit before each byte, per imx6.UART.Tx.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		reg.WaitFor32(time.Second, u.base+offUSR2, usr2TXDC, 1, 1)
		reg.Write32(u.base+offUTXD, uint32(b))
		u.fifo = append(u.fifo, b)
		reg.Set32(u.base+offUSR2, usr2RDR)
	}
	return len(p), nil
}

// Read drains bytes looped back through the simulated receive FIFO. It
// checks the FIFO itself rather than polling USR2's RDR bit; RDR is cleared
// once the FIFO empties, and URXD is read after the copy. Returns
// (0, nil) rather than blocking when the FIFO is empty: there is no
// interrupt or real wire to wait on here.
func (u *UART) Read(p []byte) (int, error) {
	if len(u.fifo) == 0 {
		return 0, nil
	}

	n := copy(p, u.fifo)
	u.fifo = u.fifo[n:]
	if len(u.fifo) == 0 {
		reg.Clear32(u.base+offUSR2, usr2RDR)
	}

	reg.Read32(u.base + offURXD)
	return n, nil
}

// TXReady reports whether USR2's TXDC bit is set.
func (u *UART) TXReady() bool { return reg.Get32(u.base+offUSR2, usr2TXDC, 1) == 1 }

// RXReady reports whether USR2's RDR bit is set.
func (u *UART) RXReady() bool { return reg.Get32(u.base+offUSR2, usr2RDR, 1) == 1 }
