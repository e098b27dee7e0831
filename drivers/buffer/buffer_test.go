// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package buffer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsSize(t *testing.T) {
	b := New(0)
	require.Equal(t, int64(DefaultSize), b.Size())
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(16)

	n, err := b.WriteAt(4, []byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	out := make([]byte, 4)
	n, err = b.ReadAt(4, out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "abcd", string(out))
}

func TestReadWriteClampAtEnd(t *testing.T) {
	b := New(8)

	n, err := b.WriteAt(6, []byte("abcdef"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = b.ReadAt(8, make([]byte, 4))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestHandleSeekReadWrite(t *testing.T) {
	b := New(16)
	h := b.Open()

	_, err := h.Write([]byte("hello"))
	require.NoError(t, err)

	pos, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	out := make([]byte, 5)
	n, err := h.Read(out)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
}

func TestHandleReadAtEndReturnsEOF(t *testing.T) {
	b := New(4)
	h := b.Open()

	_, err := h.Seek(4, io.SeekStart)
	require.NoError(t, err)

	_, err = h.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
