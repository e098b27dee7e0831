// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStartsAtZero(t *testing.T) {
	r := New()
	require.Equal(t, uint32(0), r.Now())
}

func TestTickAdvancesCounter(t *testing.T) {
	r := New()
	r.Tick()
	r.Tick()
	r.Tick()
	require.Equal(t, uint32(3), r.Now())
}

func TestSetNowOverwrites(t *testing.T) {
	r := New()
	r.SetNow(1000)
	require.Equal(t, uint32(1000), r.Now())
	r.Tick()
	require.Equal(t, uint32(1001), r.Now())
}
