// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pci declares the PCI configuration header this module's resource
// registry matches drivers against. Bus enumeration itself belongs to a
// real kernel; this package only carries the decoded shape a scan would
// hand the registry.
package pci

// Header is a decoded PCI configuration space header, or as much of one
// as the resource registry needs to match a driver's codes[] table.
type Header struct {
	VendorID, DeviceID uint16
	HeaderType         uint8
	BAR                [6]uint32
}

// Code packs VendorID/DeviceID into the (vendor<<16)|device form the
// registry's driver tables key their codes[] lists on.
func (h Header) Code() uint32 {
	return uint32(h.VendorID)<<16 | uint32(h.DeviceID)
}
