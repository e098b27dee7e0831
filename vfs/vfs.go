// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package vfs declares the filesystem-switch contract drivers in this
// module are written against (partition device nodes, ext2 super/file/
// directory nodes) and ships an in-memory reference implementation so
// those drivers can be exercised without a real kernel VFS underneath
// them.
package vfs

import (
	"io"
)

// NodeInfo describes a node being created through Create.
type NodeInfo struct {
	Type  NodeType
	Mode  uint32
	Size  int64
	Inode uint64
}

// NodeType distinguishes the kinds of node Create can register.
type NodeType int

const (
	NodeTypeFile NodeType = iota
	NodeTypeDir
	NodeTypeDevice
)

// File is the per-open-handle contract every driver in this module reads
// and writes through. It intentionally mirrors the narrow surface of
// *os.File rather than a broader abstraction: Seek-then-Read/Write is
// exactly the access pattern the partition and ext2 drivers use.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// FS is the filesystem-switch contract a driver registers device and
// filesystem nodes against.
type FS interface {
	Open(path string, flags int, mode uint32) (File, error)
	Create(path string, info NodeInfo) error
}
