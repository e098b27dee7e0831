// Partition driver: offset-shifted read/write into a parent block device.
// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package partition implements a dummy partition driver: it holds no
// partition-table knowledge of its own, only the LBA range a caller
// already computed, and shifts every read/write into that range before
// delegating to the backing drive. Grounded on
// original_source/src/c/sysdev/partition_dummy.c.
package partition

import (
	"fmt"
	"io"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

// Args mirrors ARC_DriArgs_ParitionDummy: everything needed to carve one
// partition out of an already-open drive.
type Args struct {
	DrivePath       string
	LBAStart        uint64
	SizeInLBAs      uint64
	LBASize         uint64
	Attrs           uint64
	PartitionNumber uint32
}

// Stat mirrors the subset of struct stat partition_dummy populates.
type Stat struct {
	BlockSize  uint64
	BlockCount uint64
	Size       uint64
}

// Partition is the driver state for one carved-out region of a backing
// drive, addressed in LBAs of the parent device.
type Partition struct {
	fs    vfs.FS
	drive vfs.File

	attrs           uint64
	startLBA        uint64
	sizeInLBAs      uint64
	lbaSize         uint64
	partitionNumber uint32

	nodePath string
}

// Init opens the drive named by args.DrivePath through fs and registers a
// new device node at "<drive_path>p<partition_number>", per
// partition_dummy.c's init_partition_dummy/NAME_FORMAT.
func Init(fs vfs.FS, args Args) (*Partition, error) {
	if fs == nil {
		return nil, errs.ErrBadArgument
	}

	drive, err := fs.Open(args.DrivePath, 0, 0)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		fs:              fs,
		drive:           drive,
		attrs:           args.Attrs,
		startLBA:        args.LBAStart,
		sizeInLBAs:      args.SizeInLBAs,
		lbaSize:         args.LBASize,
		partitionNumber: args.PartitionNumber,
		nodePath:        fmt.Sprintf("%sp%d", args.DrivePath, args.PartitionNumber),
	}

	if err := fs.Create(p.nodePath, vfs.NodeInfo{
		Type: vfs.NodeTypeDevice,
		Size: int64(args.SizeInLBAs * args.LBASize),
	}); err != nil {
		drive.Close()
		return nil, err
	}

	return p, nil
}

// Uninit closes the underlying drive handle.
func (p *Partition) Uninit() error {
	return p.drive.Close()
}

// NodePath returns the device node path Init registered for this partition.
func (p *Partition) NodePath() string { return p.nodePath }

// ReadAt seeks the drive to fileOffset + start_lba*lba_size and reads
// len(buf) bytes, per partition_dummy.c's read_partition_dummy.
func (p *Partition) ReadAt(fileOffset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if _, err := p.drive.Seek(fileOffset+int64(p.startLBA*p.lbaSize), io.SeekStart); err != nil {
		return 0, err
	}

	return p.drive.Read(buf)
}

// WriteAt seeks the drive to fileOffset + start_lba*lba_size and writes
// buf, per partition_dummy.c's write_partition_dummy.
func (p *Partition) WriteAt(fileOffset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if _, err := p.drive.Seek(fileOffset+int64(p.startLBA*p.lbaSize), io.SeekStart); err != nil {
		return 0, err
	}

	return p.drive.Write(buf)
}

// Stat reports the geometry a real stat(2) call against this partition's
// node would carry, per partition_dummy.c's stat_partition_dummy.
func (p *Partition) Stat() Stat {
	return Stat{
		BlockSize:  p.lbaSize,
		BlockCount: p.sizeInLBAs,
		Size:       p.lbaSize * p.sizeInLBAs,
	}
}
