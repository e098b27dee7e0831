// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/pci"
)

type fakeState struct {
	initialized bool
	closed      bool
}

func TestInitCallsDriverInit(t *testing.T) {
	r := New()
	index := r.Register(GroupDevCharBlock, &Driver{
		Name: "fake",
		Init: func(args any) (any, error) {
			return &fakeState{initialized: true}, nil
		},
	})

	res, err := r.Init(GroupDevCharBlock, index, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.ID)
	require.True(t, res.State.(*fakeState).initialized)
}

func TestInitAssignsMonotonicIDs(t *testing.T) {
	r := New()
	index := r.Register(GroupDevCharBlock, &Driver{
		Init: func(args any) (any, error) { return &fakeState{}, nil },
	})

	first, err := r.Init(GroupDevCharBlock, index, nil)
	require.NoError(t, err)
	second, err := r.Init(GroupDevCharBlock, index, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(0), first.ID)
	require.Equal(t, uint64(1), second.ID)
}

func TestInitPropagatesDriverError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	index := r.Register(GroupDevCharBlock, &Driver{
		Init: func(args any) (any, error) { return nil, wantErr },
	})

	_, err := r.Init(GroupDevCharBlock, index, nil)
	require.ErrorIs(t, err, wantErr)
}

func TestInitOutOfRangeIndex(t *testing.T) {
	r := New()
	_, err := r.Init(GroupDevCharBlock, 0, nil)
	require.Error(t, err)
}

func TestNilVtableEntriesAreCallSafe(t *testing.T) {
	r := New()
	index := r.Register(GroupDevCharBlock, &Driver{
		Init: func(args any) (any, error) { return &fakeState{}, nil },
	})
	res, err := r.Init(GroupDevCharBlock, index, nil)
	require.NoError(t, err)

	n, err := res.Driver.Read(res.State, make([]byte, 4), 0)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, r.Uninit(res))
}

func TestInitPCIMatchesCode(t *testing.T) {
	r := New()
	var gotArgs any
	r.Register(GroupPCIDevice, &Driver{
		Init: func(args any) (any, error) {
			gotArgs = args
			return &fakeState{initialized: true}, nil
		},
		PCICodes: []uint32{0x1b360010},
	})

	res, err := r.InitPCI(pci.Header{VendorID: 0x1b36, DeviceID: 0x0010}, "probe-args")
	require.NoError(t, err)
	require.True(t, res.State.(*fakeState).initialized)
	require.Equal(t, "probe-args", gotArgs)
}

func TestInitPCINoMatch(t *testing.T) {
	r := New()
	r.Register(GroupPCIDevice, &Driver{
		Init:     func(args any) (any, error) { return &fakeState{}, nil },
		PCICodes: []uint32{0x1b360010},
	})

	_, err := r.InitPCI(pci.Header{VendorID: 0xBEEF, DeviceID: 0xCAFE}, nil)
	require.Error(t, err)
}

func TestInitPCISkipsInvalidHeader(t *testing.T) {
	r := New()
	_, err := r.InitPCI(pci.Header{VendorID: 0xFFFF, DeviceID: 0xFFFF}, nil)
	require.Error(t, err)
}

func TestInitACPIMatchesHash(t *testing.T) {
	r := New()
	r.Register(GroupACPIDevice, &Driver{
		Init:      func(args any) (any, error) { return &fakeState{initialized: true}, nil },
		ACPICodes: []uint64{0xABCD1234},
	})

	res, err := r.InitACPI(0xABCD1234, nil)
	require.NoError(t, err)
	require.True(t, res.State.(*fakeState).initialized)
}
