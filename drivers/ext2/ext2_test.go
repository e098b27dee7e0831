// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ext2

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

const (
	testBlockSize      = 1024
	testInodesPerGroup = 8
	testBlocksPerGroup = 2048
	// AllocateBlocks computes its data-area base block as
	// align_up(inode_table_start + block_size*8*inode_size, block_size) /
	// block_size (super.c's ext2_allocate_blocks) — with a 1024-byte block
	// and 128-byte inodes that's a fixed ~1025-block skip regardless of how
	// small the image actually is, so the image must be big enough to
	// contain that skip plus room to allocate from.
	testTotalBlocks   = 1040
	testTotalInodes   = 8
	testInodeTableBlk = 5
	testInodeBmpBlk   = 3
	testBlockBmpBlk   = 4
	testRootDataBlk   = 6
	testFileDataBlk   = 7

	// Blocks for the indirect-spanning file used to exercise the
	// direct -> singly-indirect traversal boundary (S5). Chosen well clear
	// of the metadata blocks and the allocator's data-area base.
	testIndirectInode   = 4
	testIndirectDataBlk = 20 // first of 12 consecutive direct data blocks
	testSIBPBlk         = 32
	testSIBPDataBlk     = 33
)

// buildImage assembles a minimal, internally-consistent ext2 image: one
// block group, a root directory inode (2) containing one entry "hello.txt"
// pointing at inode 3, and inode 3's first direct block holding fixed
// content.
func buildImage(t *testing.T, requiredFeatures, writeFeatures uint32) []byte {
	t.Helper()

	img := make([]byte, testTotalBlocks*testBlockSize)

	sb := SuperBlock{
		TotalInodes:      testTotalInodes,
		TotalBlocks:      testTotalBlocks,
		Superblock:       1,
		Log2BlockSize:    0, // 1024 << 0 == 1024
		BlocksPerGroup:   testBlocksPerGroup,
		InodesPerGroup:   testInodesPerGroup,
		Sig:              Signature,
		State:            1,
		ErrHandle:        1,
		InodeSize:        128,
		RequiredFeatures: requiredFeatures,
		WriteFeatures:    writeFeatures,
	}
	sbBuf := &bytes.Buffer{}
	require.NoError(t, binary.Write(sbBuf, binary.LittleEndian, &sb))
	copy(img[SuperblockOffset:], sbBuf.Bytes())

	desc := BlockGroupDesc{
		UsageBmpBlock:     testBlockBmpBlk,
		UsageBmpInode:     testInodeBmpBlk,
		InodeTableStart:   testInodeTableBlk,
		UnallocatedBlocks: testTotalBlocks - 8,
		UnallocatedInodes: testTotalInodes - 3,
	}
	descBuf := &bytes.Buffer{}
	require.NoError(t, binary.Write(descBuf, binary.LittleEndian, &desc))
	copy(img[2*testBlockSize:], descBuf.Bytes())

	writeInode := func(inodeNum uint32, n *Inode) {
		index := inodeNum - 1
		off := testInodeTableBlk*testBlockSize + int(index)*128
		copy(img[off:], encodeInode(n))
	}

	rootInode := &Inode{
		TypePerms: 0x4000, // directory
		SizeLow:   testBlockSize,
		DBP:       [directPointers]uint32{testRootDataBlk},
	}
	writeInode(RootInode, rootInode)

	fileInode := &Inode{
		TypePerms: 0x8000, // regular file
		SizeLow:   11,
		DBP:       [directPointers]uint32{testFileDataBlk},
	}
	writeInode(3, fileInode)

	dirBlock := make([]byte, testBlockSize)
	writeDirEnt(dirBlock, 0, 3, "hello.txt")
	copy(img[testRootDataBlk*testBlockSize:], dirBlock)

	copy(img[testFileDataBlk*testBlockSize:], []byte("hello world"))

	return img
}

// buildIndirectImage extends buildImage's image with a second file,
// "indirect.txt" at inode 4, whose 12 direct pointers and first
// singly-indirect pointer (sibp[0]) are all populated with distinguishable
// content, for exercising the direct -> singly-indirect traversal boundary.
func buildIndirectImage(t *testing.T) []byte {
	t.Helper()

	img := buildImage(t, 0, 0)

	writeInode := func(inodeNum uint32, n *Inode) {
		index := inodeNum - 1
		off := testInodeTableBlk*testBlockSize + int(index)*128
		copy(img[off:], encodeInode(n))
	}

	var dbp [directPointers]uint32
	for i := range dbp {
		dbp[i] = uint32(testIndirectDataBlk + i)
	}
	indirectInode := &Inode{
		TypePerms: 0x8000, // regular file
		SizeLow:   13 * testBlockSize,
		DBP:       dbp,
		SIBP:      testSIBPBlk,
	}
	writeInode(testIndirectInode, indirectInode)

	for i := 0; i < directPointers; i++ {
		block := make([]byte, testBlockSize)
		for j := range block {
			block[j] = byte(i)
		}
		copy(img[(testIndirectDataBlk+i)*testBlockSize:], block)
	}

	sibpTable := make([]byte, testBlockSize)
	putUint32(sibpTable, testSIBPDataBlk)
	copy(img[testSIBPBlk*testBlockSize:], sibpTable)

	singlyBlock := make([]byte, testBlockSize)
	for j := range singlyBlock {
		singlyBlock[j] = byte(directPointers)
	}
	copy(img[testSIBPDataBlk*testBlockSize:], singlyBlock)

	dirBlock := make([]byte, testBlockSize)
	writeDirEnt(dirBlock, 0, 3, "hello.txt")
	writeDirEnt(dirBlock, dirEntHeaderSize+len("hello.txt"), testIndirectInode, "indirect.txt")
	copy(img[testRootDataBlk*testBlockSize:], dirBlock)

	return img
}

// writeDirEnt packs one directory entry at byte offset off within block,
// matching struct ext2_dir_ent's {inode, total_size, name_len, type}
// prefix followed immediately by the name.
func writeDirEnt(block []byte, off int, inode uint32, name string) {
	putUint32(block[off:], inode)
	totalSize := dirEntHeaderSize + len(name)
	block[off+4] = byte(totalSize)
	block[off+5] = byte(totalSize >> 8)
	block[off+6] = byte(len(name))
	block[off+7] = 0
	copy(block[off+dirEntHeaderSize:], name)
}

func mountImage(t *testing.T, img []byte) *Super {
	t.Helper()
	fs := vfs.NewMemFS()
	require.NoError(t, fs.Create("/dev/part0p1", vfs.NodeInfo{Size: int64(len(img))}))
	f, err := fs.Open("/dev/part0p1", 0, 0)
	require.NoError(t, err)
	_, err = f.Write(img)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err := Mount(fs, "/dev/part0p1")
	require.NoError(t, err)
	return s
}

func TestMountRejectsBadSignature(t *testing.T) {
	img := buildImage(t, 0, 0)
	copy(img[SuperblockOffset+56:], []byte{0, 0}) // clobber Sig

	fs := vfs.NewMemFS()
	require.NoError(t, fs.Create("/dev/part0p1", vfs.NodeInfo{Size: int64(len(img))}))
	f, err := fs.Open("/dev/part0p1", 0, 0)
	require.NoError(t, err)
	_, err = f.Write(img)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Mount(fs, "/dev/part0p1")
	require.ErrorIs(t, err, errs.ErrNotExt2)
}

func TestMountRejectsUnsupportedRequiredFeature(t *testing.T) {
	img := buildImage(t, 1<<0, 0) // compression
	fs := vfs.NewMemFS()
	require.NoError(t, fs.Create("/dev/part0p1", vfs.NodeInfo{Size: int64(len(img))}))
	f, _ := fs.Open("/dev/part0p1", 0, 0)
	f.Write(img)
	f.Close()

	_, err := Mount(fs, "/dev/part0p1")
	require.ErrorIs(t, err, errs.ErrFilesystemUnsupported)
}

func TestMountDisablesWriteOnUnsupportedWriteFeature(t *testing.T) {
	img := buildImage(t, 0, 1<<2) // directory b-trees
	s := mountImage(t, img)
	require.False(t, s.writable())
}

func TestLocateAndReadFindsFileContent(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	node, err := s.Locate("hello.txt")
	require.NoError(t, err)
	defer node.Close()

	buf := make([]byte, 11)
	n, err := node.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "hello world", string(buf))
}

func TestListDirectoryYieldsEntry(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	root, err := s.readInode(RootInode)
	require.NoError(t, err)

	var names []string
	err = listDirectory(s.partition, root, s.blockSize, func(ent *DirEnt, name string) bool {
		names = append(names, name)
		return true
	})
	require.NoError(t, err)
	require.Contains(t, names, "hello.txt")
}

func TestStatFileReportsMode(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	mode, err := s.StatFile("hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint16(0x8000), mode)
}

func TestStatFileNoSuchFile(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	_, err := s.StatFile("missing.txt")
	require.Error(t, err)
}

func TestReadInodeDataDirectBlockRoundTrip(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	node, err := s.Locate("hello.txt")
	require.NoError(t, err)
	defer node.Close()

	// Read across a non-zero offset within the single direct block.
	buf := make([]byte, 5)
	n, err := node.ReadAt(6, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))
}

func TestWriteInodeDataAllocatesHoleOnce(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	node, err := s.Locate("hello.txt")
	require.NoError(t, err)
	defer node.Close()

	// The file currently has only dbp[0] populated; writing at an offset
	// that lands in dbp[1] must allocate exactly one new block.
	payload := []byte("second block payload")
	n, err := node.WriteAt(int64(testBlockSize), payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NotEqual(t, uint32(0), node.inode.DBP[1])
	require.NotEqual(t, testFileDataBlk, int(node.inode.DBP[1]))

	bmp, err := readIndirectTableAt(s.partition, testBlockBmpBlk, testBlockSize)
	require.NoError(t, err)
	require.Equal(t, uint32(1), bmp[0], "exactly one block must be marked allocated")

	readBack := make([]byte, len(payload))
	n, err = node.ReadAt(int64(testBlockSize), readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
}

func TestAllocateBlocksRejectsWhenReadOnly(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 1<<0)) // sparse superblocks -> write disabled

	_, err := s.AllocateBlocks(3, 1)
	require.ErrorIs(t, err, errs.ErrFilesystemUnsupported)
}

func TestDeleteInodeUnimplemented(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))
	require.ErrorIs(t, s.DeleteInode(3), errs.ErrUnimplemented)
}

// S5: an inode with dbp[0..11] and sibp all populated. Reading 13 blocks
// from offset 0 must visit the 12 direct pointers in order and then the
// first pointer of the singly-indirect table, yielding the same bytes as
// reading each block directly.
func TestReadInodeDataAcrossDirectToSinglyIndirectBoundary(t *testing.T) {
	s := mountImage(t, buildIndirectImage(t))

	node, err := s.Locate("indirect.txt")
	require.NoError(t, err)
	defer node.Close()

	buf := make([]byte, 13*testBlockSize)
	n, err := node.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	for i := 0; i < directPointers; i++ {
		block := buf[i*testBlockSize : (i+1)*testBlockSize]
		for _, b := range block {
			require.Equal(t, byte(i), b)
		}
	}

	singlyBlock := buf[directPointers*testBlockSize:]
	for _, b := range singlyBlock {
		require.Equal(t, byte(directPointers), b)
	}
}

// A write landing in the singly-indirect range alone (doublyIdx==0) must
// populate sibp and must not also allocate an unneeded dibp.
func TestWriteInodeDataSinglyIndirectDoesNotAllocateDoubly(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	node, err := s.Locate("hello.txt")
	require.NoError(t, err)
	defer node.Close()

	offset := int64(directPointers) * testBlockSize
	payload := []byte("singly indirect payload")
	n, err := node.WriteAt(offset, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NotEqual(t, uint32(0), node.inode.SIBP)
	require.Equal(t, uint32(0), node.inode.DIBP)

	readBack := make([]byte, len(payload))
	n, err = node.ReadAt(offset, readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
}

// A write landing in the doubly-indirect range must persist the new
// singly-indirect block's address into dibp's own on-disk block (not into
// the singly block itself), and the singly block it allocates must start
// out zeroed rather than holding dibp's table contents.
func TestWriteInodeDataDoublyIndirectAllocatesDistinctChildBlock(t *testing.T) {
	s := mountImage(t, buildImage(t, 0, 0))

	node, err := s.Locate("hello.txt")
	require.NoError(t, err)
	defer node.Close()

	ptrCount := int64(testBlockSize / 4)
	offset := (int64(directPointers) + ptrCount) * testBlockSize // doublyIdx=1, singlyIdx=0

	payload := []byte("doubly indirect payload")
	n, err := node.WriteAt(offset, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NotEqual(t, uint32(0), node.inode.DIBP)

	dibpTable, err := readIndirectTableAt(s.partition, node.inode.DIBP, testBlockSize)
	require.NoError(t, err)
	singlyBlock := dibpTable[0]
	require.NotEqual(t, uint32(0), singlyBlock, "dibp's own block must record the new singly-indirect pointer")
	require.NotEqual(t, node.inode.DIBP, singlyBlock)

	singlyTable, err := readIndirectTableAt(s.partition, singlyBlock, testBlockSize)
	require.NoError(t, err)
	require.NotEqual(t, uint32(0), singlyTable[0])
	require.NotEqual(t, singlyBlock, singlyTable[0])

	readBack := make([]byte, len(payload))
	n, err = node.ReadAt(offset, readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
}
