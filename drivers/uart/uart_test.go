// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uart

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStartsTransmitReady(t *testing.T) {
	u := New()
	require.True(t, u.TXReady())
	require.False(t, u.RXReady())
}

func TestWriteLoopsBackIntoRead(t *testing.T) {
	u := New()

	n, err := u.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, u.RXReady())

	buf := make([]byte, 2)
	n, err = u.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf))
	require.False(t, u.RXReady())
}

func TestReadOnEmptyFIFOReturnsZero(t *testing.T) {
	u := New()

	n, err := u.Read(make([]byte, 4))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
