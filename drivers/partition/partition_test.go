// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package partition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/vfs"
)

func newDrive(t *testing.T, size int64) vfs.FS {
	t.Helper()

	fs := vfs.NewMemFS()
	require.NoError(t, fs.Create("/dev/nvme0n1", vfs.NodeInfo{Type: vfs.NodeTypeDevice, Size: size}))
	return fs
}

// Partition shift invariant: reading n bytes at offset o of a partition
// equals reading n bytes at offset o+L*S of the backing device.
func TestReadAtShiftsByStartLBA(t *testing.T) {
	fs := newDrive(t, 64*512)

	drive, err := fs.Open("/dev/nvme0n1", 0, 0)
	require.NoError(t, err)

	want := []byte("hello, partition")
	_, err = drive.Seek(10*512, 0)
	require.NoError(t, err)
	_, err = drive.Write(want)
	require.NoError(t, err)

	p, err := Init(fs, Args{
		DrivePath:       "/dev/nvme0n1",
		LBAStart:        10,
		SizeInLBAs:      54,
		LBASize:         512,
		PartitionNumber: 1,
	})
	require.NoError(t, err)

	got := make([]byte, len(want))
	n, err := p.ReadAt(0, got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.Equal(t, want, got)
}

func TestWriteAtShiftsByStartLBA(t *testing.T) {
	fs := newDrive(t, 64*512)

	p, err := Init(fs, Args{
		DrivePath:       "/dev/nvme0n1",
		LBAStart:        4,
		SizeInLBAs:      60,
		LBASize:         512,
		PartitionNumber: 2,
	})
	require.NoError(t, err)

	payload := []byte("written through a partition")
	n, err := p.WriteAt(100, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	drive, err := fs.Open("/dev/nvme0n1", 0, 0)
	require.NoError(t, err)
	_, err = drive.Seek(4*512+100, 0)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = drive.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestInitRegistersDeviceNode(t *testing.T) {
	fs := newDrive(t, 64*512)

	p, err := Init(fs, Args{
		DrivePath:       "/dev/nvme0n1",
		LBAStart:        0,
		SizeInLBAs:      64,
		LBASize:         512,
		PartitionNumber: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "/dev/nvme0n1p1", p.NodePath())

	_, err = fs.Open(p.NodePath(), 0, 0)
	require.NoError(t, err)
}

func TestStatReportsGeometry(t *testing.T) {
	fs := newDrive(t, 64*512)

	p, err := Init(fs, Args{
		DrivePath:       "/dev/nvme0n1",
		LBAStart:        0,
		SizeInLBAs:      64,
		LBASize:         512,
		PartitionNumber: 1,
	})
	require.NoError(t, err)

	st := p.Stat()
	require.Equal(t, uint64(512), st.BlockSize)
	require.Equal(t, uint64(64), st.BlockCount)
	require.Equal(t, uint64(64*512), st.Size)
}
