// Ancillary RTC stub: a free-running counter register standing in for a
// hardware real-time clock.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rtc stands in for a hardware real-time clock under test: a
// single free-running counter register, advanced by an explicit Tick
// rather than a real oscillator, read through the same internal/reg
// primitives a register-backed peripheral driver uses. Grounded on
// imx6/uart.go's register-poll idiom, generalized to a single
// whole-register counter since an RTC has no ready/busy bit to poll.
package rtc

import "github.com/arctan-os/kdrivers/internal/reg"

const offCNT = 0x00

// RTC is a software-simulated free-running counter register.
type RTC struct {
	base uintptr
	buf  []byte
}

// New returns an RTC with its counter at zero.
func New() *RTC {
	buf := make([]byte, 8)
	return &RTC{base: reg.AddrOf(buf), buf: buf}
}

// Tick advances the counter by one, standing in for a real RTC's
// oscillator-driven free-running increment.
func (r *RTC) Tick() {
	reg.Write32(r.base+offCNT, reg.Read32(r.base+offCNT)+1)
}

// Now returns the counter's current value.
func (r *RTC) Now() uint32 {
	return reg.Read32(r.base + offCNT)
}

// SetNow overwrites the counter, for tests or an initial wall-clock sync.
func (r *RTC) SetNow(v uint32) {
	reg.Write32(r.base+offCNT, v)
}
