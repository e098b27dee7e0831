// ext2 superblock driver: mount-time validation, inode table access,
// directory lookup, and the block-allocation control channel.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ext2 implements the ext2 superblock, directory and file drivers:
// mounting a partition, reading inodes and directory entries, walking the
// block-pointer tree for read/write, and lazily allocating blocks on
// write. Grounded on
// original_source/src/c/sysfs/ext2/{super,util,directory,file}.c.
package ext2

import (
	"io"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

// attrs bit positions within Super.attrs / Node.attrs.
const (
	attrCacheEnabled = 0
	attrWriteEnabled = 1
	attr64BitInodes  = 2
)

// RootInode is the well-known root directory inode number.
const RootInode = 2

// Super is the mounted-filesystem state shared by every node opened from
// it, analogous to ext2_super_driver_state.
type Super struct {
	fs            vfs.FS
	partitionPath string
	partition     vfs.File

	super      SuperBlock
	descriptor []BlockGroupDesc

	blockSize uint32
	attrs     uint64

	rootInode       *Inode
	rootInodeNumber uint32
}

// Mount opens the partition at path through fs, validates its superblock,
// and reads the block-group descriptor table and root inode, per
// super.c's init_ext2_super.
func Mount(fs vfs.FS, path string) (*Super, error) {
	partition, err := fs.Open(path, 0, 0)
	if err != nil {
		return nil, err
	}

	s := &Super{
		fs:            fs,
		partitionPath: path,
		partition:     partition,
		attrs:         1 << attrWriteEnabled,
	}

	if _, err := partition.Seek(SuperblockOffset, io.SeekStart); err != nil {
		partition.Close()
		return nil, err
	}

	sb, err := decodeSuperBlock(partition)
	if err != nil {
		partition.Close()
		return nil, err
	}
	s.super = *sb

	if s.super.Sig != Signature {
		partition.Close()
		return nil, errs.ErrNotExt2
	}

	if err := s.checkSuper(); err != nil {
		partition.Close()
		return nil, err
	}

	s.blockSize = 1024 << s.super.Log2BlockSize

	blockGroups := minU64(
		ceilDiv(uint64(s.super.TotalBlocks), uint64(s.super.BlocksPerGroup)),
		ceilDiv(uint64(s.super.TotalInodes), uint64(s.super.InodesPerGroup)),
	)

	if _, err := partition.Seek(int64((1+s.super.Superblock))*int64(s.blockSize), io.SeekStart); err != nil {
		partition.Close()
		return nil, err
	}

	s.descriptor = make([]BlockGroupDesc, blockGroups)
	for i := range s.descriptor {
		d, err := decodeBlockGroupDesc(partition)
		if err != nil {
			partition.Close()
			return nil, err
		}
		s.descriptor[i] = *d
	}

	root, err := s.readInode(RootInode)
	if err != nil {
		partition.Close()
		return nil, err
	}
	s.rootInode = root
	s.rootInodeNumber = RootInode

	return s, nil
}

// checkSuper applies super.c's ext2_check_super validation: on a dirty
// filesystem state it disables writes (ErrHandle 2) or fails (ErrHandle 3)
// and emits no warning, refuses unsupported required features, and
// disables writes for unsupported write features.
func (s *Super) checkSuper() error {
	if s.super.State != 1 {
		if s.super.ErrHandle == 2 {
			s.attrs &^= 1 << attrWriteEnabled
		}
		if s.super.ErrHandle == 3 {
			return errs.ErrFilesystemUnsupported
		}
	}

	// Required feature bit 0: compression.
	if s.super.RequiredFeatures&(1<<0) != 0 {
		return errs.ErrFilesystemUnsupported
	}
	// Required feature bit 2: journal replay. Bit 3: journal use.
	if s.super.RequiredFeatures&(1<<2) != 0 || s.super.RequiredFeatures&(1<<3) != 0 {
		return errs.ErrFilesystemUnsupported
	}

	// Write feature bit 0: sparse superblocks/descriptors.
	if s.super.WriteFeatures&(1<<0) != 0 {
		s.attrs &^= 1 << attrWriteEnabled
	}
	// Write feature bit 2: directory b-trees.
	if s.super.WriteFeatures&(1<<2) != 0 {
		s.attrs &^= 1 << attrWriteEnabled
	}

	return nil
}

// writable reports whether checkSuper left writes enabled.
func (s *Super) writable() bool {
	return s.attrs&(1<<attrWriteEnabled) != 0
}

// BlockSize returns the filesystem's block size in bytes.
func (s *Super) BlockSize() uint32 { return s.blockSize }

// readInode reads inode number `inode` (1-based) from the inode table,
// per super.c's ext2_read_inode.
func (s *Super) readInode(inode uint32) (*Inode, error) {
	if inode == 0 || len(s.descriptor) == 0 {
		return nil, errs.ErrBadArgument
	}

	group := (inode - 1) / s.super.InodesPerGroup
	index := (inode - 1) % s.super.InodesPerGroup
	if int(group) >= len(s.descriptor) {
		return nil, errs.ErrBadArgument
	}

	tableAddr := uint64(s.descriptor[group].InodeTableStart) * uint64(s.blockSize)
	offset := tableAddr + uint64(s.super.InodeSize)*uint64(index)

	if _, err := s.partition.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}

	return decodeInode(s.partition)
}

// writeInode flushes n back to its slot in the inode table.
func (s *Super) writeInode(inode uint32, n *Inode) error {
	group := (inode - 1) / s.super.InodesPerGroup
	index := (inode - 1) % s.super.InodesPerGroup
	tableAddr := uint64(s.descriptor[group].InodeTableStart) * uint64(s.blockSize)
	offset := tableAddr + uint64(s.super.InodeSize)*uint64(index)

	if _, err := s.partition.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}
	_, err := s.partition.Write(encodeInode(n))
	return err
}

// getInodeInDir resolves filename to an inode number inside the directory
// described by dirInode, per util.c's ext2_get_inode_in_dir.
func (s *Super) getInodeInDir(dirInode *Inode, blockSize uint32) func(name string) (uint32, error) {
	return func(name string) (uint32, error) {
		var found uint32
		err := listDirectory(s.partition, dirInode, blockSize, func(ent *DirEnt, entName string) bool {
			if entName != name {
				return true
			}
			found = ent.InodeNum
			return false
		})
		if err != nil {
			return 0, err
		}
		return found, nil
	}
}

// Locate resolves filename against the root directory and returns a Node
// ready to be handed to a directory or file driver's Init, per super.c's
// locate_ext2_super.
func (s *Super) Locate(filename string) (*Node, error) {
	return s.locateIn(s.rootInode, filename)
}

func (s *Super) locateIn(dirInode *Inode, filename string) (*Node, error) {
	inodeNum, err := s.getInodeInDir(dirInode, s.blockSize)(filename)
	if err != nil {
		return nil, err
	}
	if inodeNum == 0 {
		return nil, errs.ErrNoSuchResource
	}

	node, err := s.readInode(inodeNum)
	if err != nil {
		return nil, err
	}

	partition, err := s.fs.Open(s.partitionPath, 0, 0)
	if err != nil {
		return nil, err
	}

	return &Node{
		super:       s,
		partition:   partition,
		inode:       node,
		inodeNumber: inodeNum,
		blockSize:   s.blockSize,
	}, nil
}

// StatFile resolves filename inside the root directory and returns its
// mode bits, per super.c's stat_ext2_super.
func (s *Super) StatFile(filename string) (uint16, error) {
	inodeNum, err := s.getInodeInDir(s.rootInode, s.blockSize)(filename)
	if err != nil {
		return 0, err
	}
	if inodeNum == 0 {
		return 0, errs.ErrNoSuchResource
	}

	inode, err := s.readInode(inodeNum)
	if err != nil {
		return 0, err
	}

	return inode.TypePerms, nil
}

// BlockRun is one (start_block, run_length) pair returned by
// AllocateBlocks, held as two separate fields rather than packed into one
// integer.
type BlockRun struct {
	StartBlock uint64
	RunLength  uint64
}

// AllocateBlocks finds count free blocks in the block group that owns
// inode (or the next group with enough free blocks), marks them used in
// that group's usage bitmap, and returns them as runs, per super.c's
// ext2_allocate_blocks. A fully free 64-block bitmap word yields one run of
// up to 64 blocks; blocks taken from a partly used word are returned as
// runs of length 1 each, and adjacent runs are not merged.
func (s *Super) AllocateBlocks(inode uint32, count uint32) ([]BlockRun, error) {
	if inode == 0 || count == 0 {
		return nil, errs.ErrBadArgument
	}
	if !s.writable() {
		return nil, errs.ErrFilesystemUnsupported
	}

	blockGroup := (inode - 1) / s.super.InodesPerGroup

	useGroup := -1
	for i := 0; i < len(s.descriptor); i++ {
		g := (int(blockGroup) + i) % len(s.descriptor)
		if uint32(s.descriptor[g].UnallocatedBlocks) >= count {
			useGroup = g
			break
		}
	}
	if useGroup == -1 {
		return nil, errs.ErrOutOfMemory
	}

	bitmapWords := s.blockSize / 8
	bitmap := make([]uint64, bitmapWords)

	if _, err := s.partition.Seek(int64(s.descriptor[useGroup].UsageBmpBlock)*int64(s.blockSize), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, s.blockSize)
	if _, err := io.ReadFull(s.partition, raw); err != nil {
		return nil, err
	}
	for i := range bitmap {
		bitmap[i] = uint64(le32(raw[i*8:])) | uint64(le32(raw[i*8+4:]))<<32
	}

	baseBlock := alignUp(
		uint64(s.descriptor[useGroup].InodeTableStart)+(uint64(s.blockSize)*8*uint64(s.super.InodeSize)),
		uint64(s.blockSize),
	) / uint64(s.blockSize)

	var runs []BlockRun
	remaining := count

	for offset := 0; offset < len(bitmap) && remaining > 0; offset++ {
		rangeStartBlock := baseBlock + uint64(offset)*64

		if bitmap[offset] == 0 {
			max := remaining
			if max > 64 {
				max = 64
			}
			bitmap[offset] = setLowBits(bitmap[offset], max)
			runs = append(runs, BlockRun{StartBlock: rangeStartBlock, RunLength: uint64(max)})
			remaining -= max
			continue
		}

		for bit := 0; bit < 64 && remaining > 0; bit++ {
			if bitmap[offset]&(1<<uint(bit)) != 0 {
				continue
			}
			bitmap[offset] |= 1 << uint(bit)
			remaining--
			runs = append(runs, BlockRun{StartBlock: rangeStartBlock + uint64(bit), RunLength: 1})
		}
	}

	if remaining > 0 {
		return nil, errs.ErrOutOfMemory
	}

	for i, w := range bitmap {
		putUint64(raw[i*8:], w)
	}
	if _, err := s.partition.Seek(int64(s.descriptor[useGroup].UsageBmpBlock)*int64(s.blockSize), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := s.partition.Write(raw); err != nil {
		return nil, err
	}

	return runs, nil
}

// DeleteInode is reserved; the original driver never implemented it.
func (s *Super) DeleteInode(inode uint32) error {
	return errs.ErrUnimplemented
}

func setLowBits(word uint64, count uint32) uint64 {
	if count >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << count) - 1
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
