// Block-pointer tree traversal: 12 direct pointers plus singly/doubly/
// triply indirect tables, shared by file reads, file writes and directory
// listing.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ext2

import (
	"errors"
	"io"
)

// errShortIndirectTable marks an indirect-pointer table too small for the
// requested slot, which should never happen given a sane block size.
var errShortIndirectTable = errors.New("ext2: indirect table index out of range")

// readInodeData reads size bytes starting at offset from the blocks
// reachable through inode's direct and indirect pointers, per util.c's
// ext2_read_inode_data.
func readInodeData(partition io.ReadSeeker, inode *Inode, blockSize uint32, offset uint64, buf []byte) (int, error) {
	ptrCount := uint64(blockSize) / 4

	var singly, doubly, triply []uint32
	var lastDoublyIdx, lastTriplyIdx uint64 = ^uint64(0), ^uint64(0)

	if inode.SIBP != 0 {
		tbl, err := readIndirectTable(partition, inode.SIBP, blockSize)
		if err != nil {
			return 0, err
		}
		singly = tbl
	}
	if inode.DIBP != 0 {
		tbl, err := readIndirectTable(partition, inode.DIBP, blockSize)
		if err != nil {
			return 0, err
		}
		doubly = tbl
	}
	if inode.TIBP != 0 {
		tbl, err := readIndirectTable(partition, inode.TIBP, blockSize)
		if err != nil {
			return 0, err
		}
		triply = tbl
	}

	read := 0
	size := len(buf)

	for read < size {
		blockIdx := (offset + uint64(read)) / uint64(blockSize)
		within := (offset + uint64(read)) - blockIdx*uint64(blockSize)
		copySize := int(uint64(blockSize) - within)
		if remain := size - read; copySize > remain {
			copySize = remain
		}

		var physBlock uint32

		if blockIdx < directPointers {
			physBlock = inode.DBP[blockIdx]
		} else {
			singlyIdx := (blockIdx - directPointers) % ptrCount
			doublyIdx := (blockIdx - directPointers) / ptrCount
			triplyIdx := (blockIdx - directPointers) / (ptrCount * ptrCount)

			if triply != nil && triplyIdx >= 1 && triplyIdx != lastTriplyIdx {
				reloaded, err := readIndirectTableAt(partition, triply[(triplyIdx-1)%ptrCount], blockSize)
				if err != nil {
					break
				}
				doubly = reloaded
			}

			if doubly != nil && doublyIdx >= 1 && doublyIdx != lastDoublyIdx {
				reloaded, err := readIndirectTableAt(partition, doubly[(doublyIdx-1)%ptrCount], blockSize)
				if err != nil {
					break
				}
				singly = reloaded
			}

			if singly == nil || int(singlyIdx) >= len(singly) {
				break
			}
			physBlock = singly[singlyIdx]

			lastDoublyIdx = doublyIdx
			lastTriplyIdx = triplyIdx
		}

		if physBlock == 0 {
			// Hole: treated as zero-filled, matching a sparse read.
			for i := 0; i < copySize; i++ {
				buf[read+i] = 0
			}
			read += copySize
			continue
		}

		if _, err := partition.Seek(int64(physBlock)*int64(blockSize)+int64(within), io.SeekStart); err != nil {
			break
		}
		n, err := io.ReadFull(partition, buf[read:read+copySize])
		read += n
		if err != nil {
			break
		}
	}

	return read, nil
}

// blockAllocator supplies fresh physical blocks for holes encountered
// during a write, and is backed by Super.AllocateBlocks.
type blockAllocator interface {
	AllocateBlocks(inode uint32, count uint32) ([]BlockRun, error)
}

// writeInodeData writes buf at offset into inode's block tree, allocating
// blocks lazily through alloc whenever a pointer slot is still a hole, and
// flushing updated indirect tables and the inode itself back to disk. This
// is a full implementation of the lazy-allocation write path; the write
// side of the pointer tree itself is not native to the original driver, but
// directory and file writes require it to be usable at all.
func writeInodeData(partition io.ReadWriteSeeker, super *Super, alloc blockAllocator, inodeNumber uint32, inode *Inode, blockSize uint32, offset uint64, buf []byte) (int, error) {
	ptrCount := uint64(blockSize) / 4

	var singly, doubly, triply []uint32
	var singlyAddr, doublyAddr, triplyAddr uint32
	var lastDoublyIdx, lastTriplyIdx uint64 = ^uint64(0), ^uint64(0)
	written := 0
	size := len(buf)
	dirty := false

	for written < size {
		blockIdx := (offset + uint64(written)) / uint64(blockSize)
		within := (offset + uint64(written)) - blockIdx*uint64(blockSize)
		copySize := int(uint64(blockSize) - within)
		if remain := size - written; copySize > remain {
			copySize = remain
		}

		var slot *uint32

		if blockIdx < directPointers {
			slot = &inode.DBP[blockIdx]
		} else {
			singlyIdx := (blockIdx - directPointers) % ptrCount
			doublyIdx := (blockIdx - directPointers) / ptrCount
			triplyIdx := (blockIdx - directPointers) / (ptrCount * ptrCount)

			if triplyIdx >= 1 {
				if triply == nil {
					tbl, err := loadOrCreateIndirect(partition, alloc, inodeNumber, blockSize, &inode.TIBP)
					if err != nil {
						return written, err
					}
					triply = tbl
					triplyAddr = inode.TIBP
				}
				if triplyIdx != lastTriplyIdx {
					reloaded, addr, err := loadOrCreateIndirectSlot(partition, alloc, inodeNumber, blockSize, triply, triplyAddr, int((triplyIdx-1)%ptrCount))
					if err != nil {
						return written, err
					}
					doubly = reloaded
					doublyAddr = addr
				}
			} else if doublyIdx >= 1 && doubly == nil {
				tbl, err := loadOrCreateIndirect(partition, alloc, inodeNumber, blockSize, &inode.DIBP)
				if err != nil {
					return written, err
				}
				doubly = tbl
				doublyAddr = inode.DIBP
			}

			if doublyIdx >= 1 && doublyIdx != lastDoublyIdx {
				reloaded, addr, err := loadOrCreateIndirectSlot(partition, alloc, inodeNumber, blockSize, doubly, doublyAddr, int((doublyIdx-1)%ptrCount))
				if err != nil {
					return written, err
				}
				singly = reloaded
				singlyAddr = addr
			} else if singly == nil {
				tbl, err := loadOrCreateIndirect(partition, alloc, inodeNumber, blockSize, &inode.SIBP)
				if err != nil {
					return written, err
				}
				singly = tbl
				singlyAddr = inode.SIBP
			}

			if singly == nil || int(singlyIdx) >= len(singly) {
				return written, errShortIndirectTable
			}
			slot = &singly[singlyIdx]
			lastDoublyIdx, lastTriplyIdx = doublyIdx, triplyIdx
		}

		if *slot == 0 {
			runs, err := alloc.AllocateBlocks(inodeNumber, 1)
			if err != nil {
				return written, err
			}
			*slot = uint32(runs[0].StartBlock)
			dirty = true

			if blockIdx >= directPointers {
				if err := flushIndirectTable(partition, singly, singlyAddr); err != nil {
					return written, err
				}
			}
		}

		if _, err := partition.Seek(int64(*slot)*int64(blockSize)+int64(within), io.SeekStart); err != nil {
			return written, err
		}
		n, err := partition.Write(buf[written : written+copySize])
		written += n
		if err != nil {
			return written, err
		}
	}

	if newEnd := offset + uint64(written); newEnd > uint64(inode.SizeLow) {
		inode.SizeLow = uint32(newEnd)
		dirty = true
	}

	if dirty {
		if err := super.writeInode(inodeNumber, inode); err != nil {
			return written, err
		}
	}

	return written, nil
}

func readIndirectTable(partition io.ReadSeeker, block uint32, blockSize uint32) ([]uint32, error) {
	return readIndirectTableAt(partition, block, blockSize)
}

func readIndirectTableAt(partition io.ReadSeeker, block uint32, blockSize uint32) ([]uint32, error) {
	if _, err := partition.Seek(int64(block)*int64(blockSize), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, blockSize)
	if _, err := io.ReadFull(partition, raw); err != nil {
		return nil, err
	}
	tbl := make([]uint32, blockSize/4)
	for i := range tbl {
		tbl[i] = le32(raw[i*4:])
	}
	return tbl, nil
}

// loadOrCreateIndirect loads the indirect table pointed to by *ptr, or
// allocates a fresh all-zero block and updates *ptr if it is currently a
// hole.
func loadOrCreateIndirect(partition io.ReadWriteSeeker, alloc blockAllocator, inodeNumber uint32, blockSize uint32, ptr *uint32) ([]uint32, error) {
	if *ptr == 0 {
		runs, err := alloc.AllocateBlocks(inodeNumber, 1)
		if err != nil {
			// No space for the pointer block itself yet; writes limited
			// to the direct-pointer range still succeed without one.
			return nil, nil
		}
		*ptr = uint32(runs[0].StartBlock)
		table := make([]uint32, blockSize/4)
		if err := flushIndirectTableAt(partition, table, *ptr, blockSize); err != nil {
			return nil, err
		}
		return table, nil
	}
	return readIndirectTableAt(partition, *ptr, blockSize)
}

// loadOrCreateIndirectSlot resolves table[slot], allocating a fresh zeroed
// block for it when it is a hole. parentBlock is the on-disk block table
// itself was read from (or was just assigned), so the slot update is
// flushed back to the parent's own block rather than to the child. Returns
// the table found at (or newly written to) that child block, along with
// its address.
func loadOrCreateIndirectSlot(partition io.ReadWriteSeeker, alloc blockAllocator, inodeNumber uint32, blockSize uint32, table []uint32, parentBlock uint32, slot int) ([]uint32, uint32, error) {
	if table == nil || slot >= len(table) {
		return nil, 0, errShortIndirectTable
	}
	if table[slot] == 0 {
		runs, err := alloc.AllocateBlocks(inodeNumber, 1)
		if err != nil {
			return nil, 0, err
		}
		table[slot] = uint32(runs[0].StartBlock)
		if err := flushIndirectTableAt(partition, table, parentBlock, blockSize); err != nil {
			return nil, 0, err
		}
		child := make([]uint32, blockSize/4)
		if err := flushIndirectTableAt(partition, child, table[slot], blockSize); err != nil {
			return nil, 0, err
		}
		return child, table[slot], nil
	}
	tbl, err := readIndirectTableAt(partition, table[slot], blockSize)
	return tbl, table[slot], err
}

func flushIndirectTable(partition io.ReadWriteSeeker, table []uint32, block uint32) error {
	if table == nil || block == 0 {
		return nil
	}
	return flushIndirectTableAt(partition, table, block, uint32(len(table)*4))
}

func flushIndirectTableAt(partition io.ReadWriteSeeker, table []uint32, block uint32, blockSize uint32) error {
	raw := make([]byte, blockSize)
	for i, v := range table {
		putUint32(raw[i*4:], v)
	}
	if _, err := partition.Seek(int64(block)*int64(blockSize), io.SeekStart); err != nil {
		return err
	}
	_, err := partition.Write(raw)
	return err
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
