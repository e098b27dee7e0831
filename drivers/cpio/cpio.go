// CPIO ("old binary") initramfs reader: a flat header/name/data record
// stream, walked linearly by name.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cpio implements a read-only reader for the kernel's initramfs
// image, an "old binary" CPIO archive: a sequence of fixed 26-byte headers
// each immediately followed by a (possibly padded) name and data region,
// terminated by the conventional "TRAILER!!!" entry. Grounded on
// original_source/src/c/sysfs/initramfs/{super,file}.c's ARC_HeaderCPIO
// walk.
package cpio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

// Magic is the "old binary" cpio header's magic number (octal 070707),
// per struct ARC_HeaderCPIO's magic field.
const Magic = 0o070707

const trailerName = "TRAILER!!!"

// header mirrors struct ARC_HeaderCPIO's packed layout of 13 big-endian
// uint16 fields exactly (two uint16 arrays, mod_time and filesize, each
// contribute two fields), decoded with encoding/binary rather than an
// unsafe struct overlay.
type header struct {
	Magic      uint16
	Device     uint16
	Inode      uint16
	Mode       uint16
	UID        uint16
	GID        uint16
	Nlink      uint16
	Rdev       uint16
	MTimeHi    uint16
	MTimeLo    uint16
	NameSize   uint16
	FileSizeHi uint16
	FileSizeLo uint16
}

// headerSize is sizeof(struct ARC_HeaderCPIO): 13 packed uint16 fields.
const headerSize = 26

func decodeHeader(b []byte) (*header, error) {
	var h header
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// nameSize is ARC_NAME_SIZE: the name field padded to an even length.
func nameSize(h *header) int { return int(h.NameSize) + int(h.NameSize&1) }

// fileSize reassembles the big/little filesize halves ARC_DATA_SIZE reads
// as (filesize[0]<<16)|filesize[1].
func fileSize(h *header) int { return int(h.FileSizeHi)<<16 | int(h.FileSizeLo) }

// dataSize is ARC_DATA_SIZE: the data region padded to an even length.
func dataSize(h *header) int {
	sz := fileSize(h)
	return sz + (sz & 1)
}

// entry is one located record within the archive image.
type entry struct {
	header     *header
	dataOffset int
}

// Archive holds an initramfs image read fully into memory, standing in for
// initramfs_init stashing the image's base address as driver state (this
// port has no fixed load address to borrow, so the image is copied once at
// Mount instead of mapped).
type Archive struct {
	data []byte
}

// Mount opens path through fs and reads it fully into memory.
func Mount(fs vfs.FS, path string) (*Archive, error) {
	f, err := fs.Open(path, 0, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &Archive{data: data}, nil
}

// find walks the archive's header/name/data records until name matches,
// the trailer record is reached, or a malformed/short record breaks the
// chain, per initramfs_find_file's "while magic == 0070707" walk. The
// trailer check is a supplement: the original loop relies on the bytes
// following the trailer eventually failing the magic check on their own,
// which a hand-built test image padded with zeros would satisfy by luck
// rather than by construction, so this stops on the named trailer entry
// explicitly instead.
func (a *Archive) find(name string) (*entry, error) {
	offset := 0
	for offset+headerSize <= len(a.data) {
		h, err := decodeHeader(a.data[offset : offset+headerSize])
		if err != nil || h.Magic != Magic {
			break
		}

		nameStart := offset + headerSize
		nameEnd := nameStart + int(h.NameSize)
		if nameEnd > len(a.data) {
			break
		}
		entryName := string(bytes.TrimRight(a.data[nameStart:nameEnd], "\x00"))

		dataOffset := nameStart + nameSize(h)

		if entryName == trailerName {
			break
		}
		if entryName == name {
			return &entry{header: h, dataOffset: dataOffset}, nil
		}

		offset = dataOffset + dataSize(h)
	}

	return nil, errs.ErrNoSuchResource
}

// Stat describes one archive entry's metadata, per initramfs_stat.
type Stat struct {
	UID, GID    uint16
	Mode        uint16
	Dev, Inode  uint16
	Nlink, Rdev uint16
	Size        int64
	ModTime     uint32
}

// Stat resolves filename and reports its metadata, per initramfs_stat.
func (a *Archive) Stat(filename string) (Stat, error) {
	e, err := a.find(filename)
	if err != nil {
		return Stat{}, err
	}

	h := e.header
	return Stat{
		UID: h.UID, GID: h.GID, Mode: h.Mode,
		Dev: h.Device, Inode: h.Inode, Nlink: h.Nlink, Rdev: h.Rdev,
		Size:    int64(fileSize(h)),
		ModTime: uint32(h.MTimeHi)<<16 | uint32(h.MTimeLo),
	}, nil
}

// Node is a located file ready for reading, per initramfs_locate handing
// the found header back to the file driver.
type Node struct {
	archive *Archive
	entry   *entry
}

// Locate resolves filename to a Node, per initramfs_locate.
func (a *Archive) Locate(filename string) (*Node, error) {
	e, err := a.find(filename)
	if err != nil {
		return nil, err
	}
	return &Node{archive: a, entry: e}, nil
}

// Size returns the located file's declared size.
func (n *Node) Size() int64 { return int64(fileSize(n.entry.header)) }

// ReadAt fills buf with the entry's data starting at offset, zero-filling
// anything past end-of-file and always reporting len(buf) bytes served,
// per initramfs_read's loop: "value defaults to 0; copy only while
// i+file->offset < f_size" — the original never short-reads, it pads the
// tail of the caller's buffer with zeros instead.
func (n *Node) ReadAt(offset int64, buf []byte) (int, error) {
	fsize := int64(fileSize(n.entry.header))
	base := n.entry.dataOffset

	for i := range buf {
		buf[i] = 0

		pos := offset + int64(i)
		if pos < fsize {
			src := base + int(pos)
			if src < len(n.archive.data) {
				buf[i] = n.archive.data[src]
			}
		}
	}

	return len(buf), nil
}

// WriteAt always fails: initramfs is a read-only filesystem, per
// initramfs_write logging and discarding the attempt.
func (n *Node) WriteAt(offset int64, buf []byte) (int, error) {
	return 0, errs.ErrFilesystemUnsupported
}
