// kdrivers-sim wires every layer of this module together end to end
// against a simulated NVMe controller: registry → controller bring-up →
// namespace → partition → ext2 mount → a directory walk over the VFS
// contract, with no real hardware underneath any of it.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/drivers/ext2"
	"github.com/arctan-os/kdrivers/drivers/nvme"
	"github.com/arctan-os/kdrivers/drivers/partition"
	"github.com/arctan-os/kdrivers/drivers/registry"
	"github.com/arctan-os/kdrivers/vfs"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("kdrivers-sim: %v", err)
	}
}

const (
	lbaSize  = 512
	lbaCount = 2200 // ~1.1MiB: enough room for an ext2 image plus the
	// block allocator's fixed ~1025-block inode-table skip (see
	// drivers/ext2's AllocateBlocks).
)

func run() error {
	reg := registry.New()
	registerDriverNames(reg)

	controller := nvme.New(nvme.Config{
		MQES: 4095, DSTRD: 0, CSS: nvme.CSSNVMCommandSet, MPSMIN: 0,

		ControllerID:   1,
		Version:        0x00010400,
		ControllerType: 1,
		MDTS:           6,

		Drives: []nvme.SimulatedDrive{
			{NSID: 1, LBASize: lbaSize, SizeLBAs: lbaCount},
		},
	})

	namespaces, err := controller.Init()
	if err != nil {
		return fmt.Errorf("controller bring-up: %w", err)
	}
	if len(namespaces) == 0 {
		return errs.ErrNoSuchResource
	}
	ns := namespaces[0]
	log.Printf("nvme: namespace %d ready, %d LBAs of %d bytes", ns.NSID(), ns.SizeLBAs(), ns.LBASize())

	driveFS := &singleNodeFS{path: "/dev/nvme0n1", dev: &namespaceDevice{ns: ns}, size: int64(ns.SizeLBAs() * uint64(ns.LBASize()))}

	part, err := partition.Init(driveFS, partition.Args{
		DrivePath:       "/dev/nvme0n1",
		LBAStart:        0,
		SizeInLBAs:      ns.SizeLBAs(),
		LBASize:         uint64(ns.LBASize()),
		PartitionNumber: 1,
	})
	if err != nil {
		return fmt.Errorf("partition init: %w", err)
	}
	defer part.Uninit()
	log.Printf("partition: registered %s, %+v", part.NodePath(), part.Stat())

	image := buildExt2Image()
	if _, err := part.WriteAt(0, image); err != nil {
		return fmt.Errorf("seed ext2 image: %w", err)
	}

	partitionFS := &singleNodeFS{path: part.NodePath(), dev: part, size: int64(len(image))}
	super, err := ext2.Mount(partitionFS, part.NodePath())
	if err != nil {
		return fmt.Errorf("ext2 mount: %w", err)
	}
	log.Printf("ext2: mounted, block size %d", super.BlockSize())

	node, err := super.Locate("hello.txt")
	if err != nil {
		return fmt.Errorf("locate hello.txt: %w", err)
	}
	defer node.Close()

	content := make([]byte, node.Size())
	if _, err := node.ReadAt(0, content); err != nil {
		return fmt.Errorf("read hello.txt: %w", err)
	}
	log.Printf("ext2: hello.txt = %q", string(content))

	return nil
}

// registerDriverNames populates the registry's filesystem driver groups
// with name-only vtable entries, exercising the L6 registration path this
// demo otherwise has no other reason to drive (mounting happens directly
// against ext2.Mount here rather than through the registry's Locate
// vtable, since this binary has only one filesystem to mount).
func registerDriverNames(r *registry.Registry) {
	r.Register(registry.GroupFilesystemSuper, &registry.Driver{Name: "ext2"})
	r.Register(registry.GroupFilesystemFile, &registry.Driver{Name: "ext2"})
	r.Register(registry.GroupFilesystemSuper, &registry.Driver{Name: "cpio"})
	r.Register(registry.GroupDevCharBlock, &registry.Driver{Name: "buffer"})
}

// namespaceDevice adapts nvme.Namespace's uint64-offset ReadAt/WriteAt
// into the int64-offset shape singleNodeFS/cursorFile expect.
type namespaceDevice struct {
	ns *nvme.Namespace
}

func (d *namespaceDevice) ReadAt(offset int64, buf []byte) (int, error) {
	return d.ns.ReadAt(uint64(offset), buf)
}

func (d *namespaceDevice) WriteAt(offset int64, buf []byte) (int, error) {
	return d.ns.WriteAt(uint64(offset), buf)
}

// readWriterAt is the minimal offset-addressed device contract both a
// Namespace (through namespaceDevice) and a Partition already satisfy.
type readWriterAt interface {
	ReadAt(offset int64, buf []byte) (int, error)
	WriteAt(offset int64, buf []byte) (int, error)
}

// cursorFile adapts a ReadAt/WriteAt-addressed device into the
// Read/Write/Seek/Close handle vfs.File expects, the same cursor shape
// drivers/buffer.Handle wraps around a Buffer.
type cursorFile struct {
	dev    readWriterAt
	size   int64
	offset int64
}

func (f *cursorFile) Read(p []byte) (int, error) {
	n, err := f.dev.ReadAt(f.offset, p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	f.offset += int64(n)
	return n, nil
}

func (f *cursorFile) Write(p []byte) (int, error) {
	n, err := f.dev.WriteAt(f.offset, p)
	f.offset += int64(n)
	return n, err
}

func (f *cursorFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = f.size + offset
	}
	return f.offset, nil
}

func (f *cursorFile) Close() error { return nil }

// singleNodeFS is a minimal vfs.FS exposing exactly one named device node
// backed by a readWriterAt, standing in for the kernel's real filesystem
// switch already having registered a /dev node against driver-owned
// storage (partition.Init's own Create call targets a MemFS-shaped
// switch elsewhere in this module's tests; this demo's switch only ever
// needs to resolve the one path it was built around).
type singleNodeFS struct {
	path string
	dev  readWriterAt
	size int64
}

func (fs *singleNodeFS) Open(path string, flags int, mode uint32) (vfs.File, error) {
	if path != fs.path {
		return nil, errs.ErrNoSuchResource
	}
	return &cursorFile{dev: fs.dev, size: fs.size}, nil
}

func (fs *singleNodeFS) Create(path string, info vfs.NodeInfo) error {
	return nil
}

// buildExt2Image hand-assembles a minimal, internally consistent ext2
// image: one block group, a root directory containing "hello.txt", and
// that file's content in its first direct block. Mirrors
// drivers/ext2's own test fixture builder, reproduced here rather than
// imported since it is unexported test-only code in that package.
func buildExt2Image() []byte {
	const (
		blockSize      = 1024
		inodesPerGroup = 8
		blocksPerGroup = 2048
		totalBlocks    = 1040
		totalInodes    = 8
		inodeTableBlk  = 5
		inodeBmpBlk    = 3
		blockBmpBlk    = 4
		rootDataBlk    = 6
		fileDataBlk    = 7
	)

	img := make([]byte, totalBlocks*blockSize)

	sb := ext2.SuperBlock{
		TotalInodes:    totalInodes,
		TotalBlocks:    totalBlocks,
		Superblock:     1,
		Log2BlockSize:  0,
		BlocksPerGroup: blocksPerGroup,
		InodesPerGroup: inodesPerGroup,
		Sig:            ext2.Signature,
		State:          1,
		ErrHandle:      1,
		InodeSize:      128,
	}
	sbBuf := &bytes.Buffer{}
	binary.Write(sbBuf, binary.LittleEndian, &sb)
	copy(img[ext2.SuperblockOffset:], sbBuf.Bytes())

	desc := ext2.BlockGroupDesc{
		UsageBmpBlock:     blockBmpBlk,
		UsageBmpInode:     inodeBmpBlk,
		InodeTableStart:   inodeTableBlk,
		UnallocatedBlocks: totalBlocks - 8,
		UnallocatedInodes: totalInodes - 3,
	}
	descBuf := &bytes.Buffer{}
	binary.Write(descBuf, binary.LittleEndian, &desc)
	copy(img[2*blockSize:], descBuf.Bytes())

	writeInode := func(inodeNum uint32, n *ext2.Inode) {
		index := inodeNum - 1
		off := inodeTableBlk*blockSize + int(index)*128
		buf := &bytes.Buffer{}
		binary.Write(buf, binary.LittleEndian, n)
		copy(img[off:], buf.Bytes())
	}

	var dbp [12]uint32
	dbp[0] = rootDataBlk
	writeInode(ext2.RootInode, &ext2.Inode{TypePerms: 0x4000, SizeLow: blockSize, DBP: dbp})

	dbp[0] = fileDataBlk
	writeInode(3, &ext2.Inode{TypePerms: 0x8000, SizeLow: 11, DBP: dbp})

	dirBlock := make([]byte, blockSize)
	writeDirEnt(dirBlock, 0, 3, "hello.txt")
	copy(img[rootDataBlk*blockSize:], dirBlock)

	copy(img[fileDataBlk*blockSize:], []byte("hello world"))

	return img
}

// writeDirEnt packs one directory entry matching struct ext2_dir_ent's
// {inode, total_size, name_len, type} prefix followed by the name.
func writeDirEnt(block []byte, off int, inode uint32, name string) {
	putUint32(block[off:], inode)
	totalSize := 8 + len(name)
	block[off+4] = byte(totalSize)
	block[off+5] = byte(totalSize >> 8)
	block[off+6] = byte(len(name))
	block[off+7] = 0
	copy(block[off+8:], name)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
