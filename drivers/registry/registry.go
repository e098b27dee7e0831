// Resource registry: driver vtables grouped by kind, matched by PCI/ACPI
// codes, instantiated into id-bearing resources.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package registry implements the polymorphic driver table described in
// spec.md §4.6: a flat, per-group array of driver vtables, matched against
// PCI/ACPI codes and instantiated into resources carrying a monotonic id.
// Grounded on original_source/src/c/resource.c, re-expressed as a struct
// of function values standing in for the C driver-definition table — Go
// interfaces plus nil-safe stubs take the place of null-checked function
// pointers.
package registry

import (
	"sync"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/pci"
)

// Group names a driver table, mirroring ARC_DRIGRP_*.
type Group int

const (
	GroupFilesystemSuper Group = iota
	GroupFilesystemDir
	GroupFilesystemFile
	GroupACPIDevice
	GroupPCIDevice
	GroupDevCharBlock

	groupCount
)

// Driver is one vtable entry within a Group's table. Every function field
// is call-safe even when left nil: Register wraps missing entries in a
// no-op stub before storing them, so callers never need a nil check.
type Driver struct {
	Name string

	Init    func(args any) (state any, err error)
	Uninit  func(state any) error
	Read    func(state any, buf []byte, offset int64) (int, error)
	Write   func(state any, buf []byte, offset int64) (int, error)
	Seek    func(state any, offset int64, whence int) (int64, error)
	Rename  func(state any, newName string) error
	Stat    func(state any) (any, error)
	Control func(state any, cmd int, arg any) (any, error)
	Create  func(state any, name string, info any) error
	Remove  func(state any, name string) error
	Locate  func(state any, name string) (any, error)

	// PCICodes/ACPICodes list the (vendor<<16)|device and HID-hash values
	// this driver claims, terminated implicitly by the slice's length
	// rather than a sentinel value (Go slices already carry their
	// length).
	PCICodes  []uint32
	ACPICodes []uint64
}

func noopInit(args any) (any, error)                        { return nil, nil }
func noopUninit(state any) error                             { return nil }
func noopRW(state any, buf []byte, offset int64) (int, error) { return 0, nil }
func noopSeek(state any, offset int64, whence int) (int64, error) {
	return 0, nil
}
func noopRename(state any, newName string) error { return nil }
func noopStat(state any) (any, error)             { return nil, nil }
func noopControl(state any, cmd int, arg any) (any, error) {
	return nil, nil
}
func noopCreate(state any, name string, info any) error { return nil }
func noopRemove(state any, name string) error           { return nil }
func noopLocate(state any, name string) (any, error)    { return nil, nil }

func fillStubs(d *Driver) *Driver {
	if d.Init == nil {
		d.Init = noopInit
	}
	if d.Uninit == nil {
		d.Uninit = noopUninit
	}
	if d.Read == nil {
		d.Read = noopRW
	}
	if d.Write == nil {
		d.Write = noopRW
	}
	if d.Seek == nil {
		d.Seek = noopSeek
	}
	if d.Rename == nil {
		d.Rename = noopRename
	}
	if d.Stat == nil {
		d.Stat = noopStat
	}
	if d.Control == nil {
		d.Control = noopControl
	}
	if d.Create == nil {
		d.Create = noopCreate
	}
	if d.Remove == nil {
		d.Remove = noopRemove
	}
	if d.Locate == nil {
		d.Locate = noopLocate
	}
	return d
}

// Resource is one instantiated, running driver instance.
type Resource struct {
	ID     uint64
	Group  Group
	Index  int
	Driver *Driver
	State  any
}

// Registry owns the per-group driver tables and the monotonic resource id
// counter.
type Registry struct {
	mu     sync.Mutex
	tables [groupCount][]*Driver

	nextID uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register appends driver to group's table and returns its index, filling
// any nil vtable entries with no-op stubs first so the driver contract's
// "no null entries" invariant always holds.
func (r *Registry) Register(group Group, driver *Driver) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	fillStubs(driver)
	r.tables[group] = append(r.tables[group], driver)
	return len(r.tables[group]) - 1
}

// Init allocates a resource against group's table entry at index, assigns
// it a monotonic id, and calls the driver's Init. If Init fails the
// resource is discarded and the error returned.
func (r *Registry) Init(group Group, index int, args any) (*Resource, error) {
	r.mu.Lock()
	if group < 0 || int(group) >= int(groupCount) || index < 0 || index >= len(r.tables[group]) {
		r.mu.Unlock()
		return nil, errs.ErrNoSuchResource
	}
	driver := r.tables[group][index]
	id := r.nextID
	r.nextID++
	r.mu.Unlock()

	state, err := driver.Init(args)
	if err != nil {
		return nil, err
	}

	return &Resource{ID: id, Group: group, Index: index, Driver: driver, State: state}, nil
}

func findPCICode(table []*Driver, target uint32) int {
	for i, d := range table {
		if d == nil {
			continue
		}
		for _, code := range d.PCICodes {
			if code == target {
				return i
			}
		}
	}
	return -1
}

func findACPICode(table []*Driver, target uint64) int {
	for i, d := range table {
		if d == nil {
			continue
		}
		for _, code := range d.ACPICodes {
			if code == target {
				return i
			}
		}
	}
	return -1
}

// InitPCI matches header's (vendor<<16)|device code against the PCI
// device group's drivers and instantiates the first match.
func (r *Registry) InitPCI(header pci.Header, args any) (*Resource, error) {
	if header.VendorID == 0xFFFF && header.DeviceID == 0xFFFF {
		return nil, errs.ErrNoSuchResource
	}

	r.mu.Lock()
	index := findPCICode(r.tables[GroupPCIDevice], header.Code())
	r.mu.Unlock()

	if index < 0 {
		return nil, errs.ErrNoSuchResource
	}

	return r.Init(GroupPCIDevice, index, args)
}

// InitACPI matches hidHash against the ACPI device group's drivers and
// instantiates the first match.
func (r *Registry) InitACPI(hidHash uint64, args any) (*Resource, error) {
	if hidHash == 0 {
		return nil, errs.ErrNoSuchResource
	}

	r.mu.Lock()
	index := findACPICode(r.tables[GroupACPIDevice], hidHash)
	r.mu.Unlock()

	if index < 0 {
		return nil, errs.ErrNoSuchResource
	}

	return r.Init(GroupACPIDevice, index, args)
}

// Uninit calls the resource's driver Uninit and releases it.
func (r *Registry) Uninit(res *Resource) error {
	if res == nil {
		return errs.ErrBadArgument
	}
	return res.Driver.Uninit(res.State)
}
