// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cpio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/drivers/errs"
	"github.com/arctan-os/kdrivers/vfs"
)

// packEntry appends one header/name/data record, padding name and data to
// even lengths, per ARC_NAME_SIZE/ARC_DATA_SIZE.
func packEntry(buf *bytes.Buffer, name string, mode, uid, gid uint16, data []byte) {
	h := header{
		Magic:      Magic,
		Mode:       mode,
		UID:        uid,
		GID:        gid,
		Nlink:      1,
		NameSize:   uint16(len(name) + 1), // NUL-terminated, like a real cpio name
		FileSizeHi: uint16(len(data) >> 16),
		FileSizeLo: uint16(len(data)),
	}

	write16 := func(v uint16) {
		buf.WriteByte(byte(v >> 8))
		buf.WriteByte(byte(v))
	}
	write16(h.Magic)
	write16(h.Device)
	write16(h.Inode)
	write16(h.Mode)
	write16(h.UID)
	write16(h.GID)
	write16(h.Nlink)
	write16(h.Rdev)
	write16(h.MTimeHi)
	write16(h.MTimeLo)
	write16(h.NameSize)
	write16(h.FileSizeHi)
	write16(h.FileSizeLo)

	buf.WriteString(name)
	buf.WriteByte(0)
	if nameSize(h.asPtr()) > len(name)+1 {
		buf.WriteByte(0)
	}

	buf.Write(data)
	if dataSize(h.asPtr()) > len(data) {
		buf.WriteByte(0)
	}
}

func (h header) asPtr() *header { return &h }

func buildArchive(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	packEntry(buf, "hello.txt", 0o100644, 1000, 1000, []byte("hi there!!"))
	packEntry(buf, "TRAILER!!!", 0, 0, 0, nil)
	return buf.Bytes()
}

func mountArchive(t *testing.T, img []byte) *Archive {
	t.Helper()
	fs := vfs.NewMemFS()
	require.NoError(t, fs.Create("/boot/initramfs", vfs.NodeInfo{Size: int64(len(img))}))
	f, err := fs.Open("/boot/initramfs", 0, 0)
	require.NoError(t, err)
	_, err = f.Write(img)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := Mount(fs, "/boot/initramfs")
	require.NoError(t, err)
	return a
}

func TestLocateAndReadFindsContent(t *testing.T) {
	a := mountArchive(t, buildArchive(t))

	node, err := a.Locate("hello.txt")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := node.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "hi there!!", string(buf))
}

func TestReadPastEndOfFileZeroFillsWithoutShortCount(t *testing.T) {
	a := mountArchive(t, buildArchive(t))
	node, err := a.Locate("hello.txt")
	require.NoError(t, err)

	buf := make([]byte, 20)
	n, err := node.ReadAt(5, buf)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, "ere!!", string(buf[:5]))
	for _, b := range buf[5:] {
		require.Equal(t, byte(0), b)
	}
}

func TestWriteAlwaysFails(t *testing.T) {
	a := mountArchive(t, buildArchive(t))
	node, err := a.Locate("hello.txt")
	require.NoError(t, err)

	n, err := node.WriteAt(0, []byte("x"))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, errs.ErrFilesystemUnsupported)
}

func TestStatReportsMetadata(t *testing.T) {
	a := mountArchive(t, buildArchive(t))

	st, err := a.Stat("hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint16(0o100644), st.Mode)
	require.Equal(t, uint16(1000), st.UID)
	require.Equal(t, int64(10), st.Size)
}

func TestLocateNoSuchFile(t *testing.T) {
	a := mountArchive(t, buildArchive(t))

	_, err := a.Locate("missing.txt")
	require.ErrorIs(t, err, errs.ErrNoSuchResource)
}

func TestLocateStopsAtTrailer(t *testing.T) {
	a := mountArchive(t, buildArchive(t))

	_, err := a.Locate("TRAILER!!!")
	require.ErrorIs(t, err, errs.ErrNoSuchResource)
}
