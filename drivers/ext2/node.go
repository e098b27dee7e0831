// File and directory node drivers: reading/writing an inode's data and
// listing directory entries.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ext2

import (
	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

// Node is a locate()'d inode ready to back either a file or directory
// node driver, per ext2_node_driver_state.
type Node struct {
	super       *Super
	partition   vfs.File
	inode       *Inode
	inodeNumber uint32
	blockSize   uint32
}

// InodeNumber returns the inode number this node wraps.
func (n *Node) InodeNumber() uint32 { return n.inodeNumber }

// Mode returns the inode's type/permission bits.
func (n *Node) Mode() uint16 { return n.inode.TypePerms }

// Size returns the inode's low 32 bits of size.
func (n *Node) Size() int64 { return int64(n.inode.SizeLow) }

// Close releases the node's own partition handle.
func (n *Node) Close() error {
	return n.partition.Close()
}

// ReadAt reads len(buf) bytes starting at offset, per file.c's
// read_ext2_file delegating to ext2_read_inode_data.
func (n *Node) ReadAt(offset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return readInodeData(n.partition, n.inode, n.blockSize, uint64(offset), buf)
}

// WriteAt writes buf at offset, allocating blocks lazily as needed. This
// extends the original driver's unimplemented write_ext2_file stub into a
// working write path, per the layer's required lazy-block-allocation
// behavior.
func (n *Node) WriteAt(offset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return writeInodeData(n.partition, n.super, n.super, n.inodeNumber, n.inode, n.blockSize, uint64(offset), buf)
}

// DirEntry is one decoded, named directory entry handed to a
// ListDirectory callback.
type DirEntry struct {
	InodeNumber uint32
	Name        string
	Type        uint8
}

// ListDirectory walks n's data blocks as a sequence of directory entries,
// invoking fn for each until it returns false or entries are exhausted,
// per util.c's ext2_list_directory.
func (n *Node) ListDirectory(fn func(DirEntry) bool) error {
	return listDirectory(n.partition, n.inode, n.blockSize, func(ent *DirEnt, name string) bool {
		return fn(DirEntry{InodeNumber: ent.InodeNum, Name: name, Type: ent.TypeOrUpper})
	})
}

// listDirectory is the shared implementation behind Node.ListDirectory and
// Super.getInodeInDir: it reads dirInode's data one block at a time and
// walks the directory entries packed within each block, stopping early if
// fn returns false. Bounded by the inode's own size rather than looping
// until a read returns zero: a hole reads back as a zero-filled block
// (readInodeData never fails or short-reads on one), so an unbounded loop
// here would never terminate.
func listDirectory(partition vfs.File, dirInode *Inode, blockSize uint32, fn func(ent *DirEnt, name string) bool) error {
	block := make([]byte, blockSize)
	var offset uint64
	total := uint64(dirInode.SizeLow)

	for offset < total {
		n, err := readInodeData(partition, dirInode, blockSize, offset, block)
		if err != nil || n == 0 {
			return err
		}

		for i := 0; i < int(blockSize); {
			if i+dirEntHeaderSize > int(blockSize) {
				break
			}
			ent := decodeDirEnt(block[i:])
			if ent.TotalSize == 0 {
				break
			}

			nameEnd := i + dirEntHeaderSize + int(ent.LowerNameLen)
			if nameEnd > len(block) {
				break
			}
			name := string(block[i+dirEntHeaderSize : nameEnd])

			if !fn(ent, name) {
				return nil
			}

			i += int(ent.TotalSize)
		}

		offset += uint64(n)
	}

	return nil
}

// GetInodeInDir resolves filename to an inode number within n, treating n
// as a directory, per util.c's ext2_get_inode_in_dir.
func (n *Node) GetInodeInDir(filename string) (uint32, error) {
	var found uint32
	err := n.ListDirectory(func(ent DirEntry) bool {
		if ent.Name != filename {
			return true
		}
		found = ent.InodeNumber
		return false
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, errs.ErrNoSuchResource
	}
	return found, nil
}

// Stat resolves filename inside n (treated as a directory) and returns the
// matching inode's mode bits, per directory.c's stat_ext2_directory.
func (n *Node) Stat(filename string) (uint16, error) {
	inodeNum, err := n.GetInodeInDir(filename)
	if err != nil {
		return 0, err
	}

	inode, err := n.super.readInode(inodeNum)
	if err != nil {
		return 0, err
	}

	return inode.TypePerms, nil
}

// Locate resolves filename inside n (treated as a directory) into a new
// Node, per directory.c's locate_ext2_directory.
func (n *Node) Locate(filename string) (*Node, error) {
	return n.super.locateIn(n.inode, filename)
}
