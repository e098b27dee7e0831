// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import "unsafe"

// AddrOf returns the address of buf's first byte, for mapping a simulated
// MMIO register page or DMA buffer onto a Go-allocated backing slice.
func AddrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}
