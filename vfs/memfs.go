// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vfs

import (
	"errors"
	"io"
	"sync"
)

// ErrNotFound is returned by MemFS.Open for a path with no registered node.
var ErrNotFound = errors.New("vfs: no such node")

// MemFS is a minimal in-memory FS used by this module's tests in place of
// a real kernel filesystem switch underneath the partition and namespace
// drivers it exercises.
type MemFS struct {
	mu    sync.Mutex
	nodes map[string]*memNode
}

type memNode struct {
	info NodeInfo
	data []byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{nodes: make(map[string]*memNode)}
}

// Create registers a node at path with the given size, zero-filled.
func (m *MemFS) Create(path string, info NodeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[path] = &memNode{info: info, data: make([]byte, info.Size)}
	return nil
}

// Open returns a handle onto the node previously registered at path.
func (m *MemFS) Open(path string, flags int, mode uint32) (File, error) {
	m.mu.Lock()
	node, ok := m.nodes[path]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &memFile{node: node}, nil
}

// memFile is a seekable handle over a memNode's backing buffer, growing it
// on writes past the current end exactly as a real block device file would
// accept writes anywhere within its allocated extent.
type memFile struct {
	mu     sync.Mutex
	node   *memNode
	offset int64
}

func (f *memFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offset >= int64(len(f.node.data)) {
		return 0, io.EOF
	}

	n := copy(buf, f.node.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := f.offset + int64(len(buf))
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}

	n := copy(f.node.data[f.offset:], buf)
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = int64(len(f.node.data)) + offset
	}
	return f.offset, nil
}

func (f *memFile) Close() error { return nil }
