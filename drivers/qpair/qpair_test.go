// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package qpair

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/dma"
	"github.com/arctan-os/kdrivers/internal/reg"
)

// Property 1: command-ID round-trip for every (queue, slot) with slot in
// [0,255], including the admin discriminator bit.
func TestStampCIDRoundTrip(t *testing.T) {
	for _, queue := range []int{AdminQueue, 0, 1, 37, 63} {
		for slot := 0; slot <= 255; slot++ {
			cid := stampCID(queue, slot)

			gotQueue, gotSlot := decodeCID(cid)
			require.Equal(t, queue, gotQueue, "queue=%d slot=%d cid=%#x", queue, slot, cid)
			require.Equal(t, slot, gotSlot, "queue=%d slot=%d cid=%#x", queue, slot, cid)

			isAdmin := (cid>>15)&1 == 1
			require.Equal(t, queue == AdminQueue, isAdmin)
		}
	}
}

// Property 2: doorbell address formula for DSTRD in {0,1,2,3} and queue
// indices 0..63, matching base + 0x1000 + (2n)*(4<<dstrd) for submission and
// base + 0x1000 + (2n+1)*(4<<dstrd) for completion.
func TestDoorbellAddressFormula(t *testing.T) {
	const base uintptr = 0x40000000

	for dstrd := uint(0); dstrd <= 3; dstrd++ {
		for n := 0; n <= 63; n++ {
			wantSQ := base + 0x1000 + uintptr(2*n)*(4<<dstrd)
			wantCQ := base + 0x1000 + uintptr(2*n+1)*(4<<dstrd)

			require.Equal(t, wantSQ, sqDoorbell(base, dstrd, n))
			require.Equal(t, wantCQ, cqDoorbell(base, dstrd, n))
		}
	}
}

func newTestEngine(t *testing.T, subLen, compLen int) (*Engine, *Pair, *dma.Region) {
	t.Helper()

	region := dma.NewRegion(1 << 20)
	// Submit and Poll write doorbells, so the property page must be real
	// memory in a hosted test.
	props := make([]byte, 0x2000)
	t.Cleanup(func() { runtime.KeepAlive(props) })
	e := NewEngine(reg.AddrOf(props), 0)

	pair, err := e.CreateAdmin(region, subLen, compLen)
	require.NoError(t, err)

	return e, pair, region
}

// Property 3: a completion ring of capacity M, after issuing k*M+r
// completions, reports phase = initial phase XOR (k&1).
func TestPhaseInversionAcrossWraps(t *testing.T) {
	const capacity = 4

	e, pair, _ := newTestEngine(t, capacity, capacity)

	initialPhase := pair.phase

	submitAndPoll := func() {
		cmd := &SubmissionEntry{}
		require.NoError(t, e.Submit(AdminQueue, cmd))
		require.NoError(t, e.WriteCompletion(AdminQueue, cmd.CID, 0, 0))
		_, err := e.Poll(cmd)
		require.NoError(t, err)
	}

	cases := []struct{ k, r int }{
		{0, 1}, {0, 3}, {1, 0}, {1, 2}, {2, 1}, {3, 0},
	}

	completed := 0
	for _, c := range cases {
		target := c.k*capacity + c.r
		for completed < target {
			submitAndPoll()
			completed++
		}

		want := initialPhase ^ uint32(c.k&1)
		require.Equal(t, want, pair.phase, "after %d completions (k=%d r=%d)", completed, c.k, c.r)
	}
}

// Property 4: submissions fill slots 0..N-1 then wrap; the N-th submission
// reuses slot 0 only after its matching completion has been acknowledged.
func TestRingWrapReusesSlotOnlyAfterCompletion(t *testing.T) {
	const capacity = 4

	e, pair, _ := newTestEngine(t, capacity, capacity)

	cmds := make([]*SubmissionEntry, capacity)
	for i := range cmds {
		cmds[i] = &SubmissionEntry{}
		require.NoError(t, e.Submit(AdminQueue, cmds[i]))
		_, slot := decodeCID(cmds[i].CID)
		require.Equal(t, i, slot)
	}

	// Ring is full: the (N+1)-th submission must fail until a slot frees.
	overflow := &SubmissionEntry{}
	err := e.Submit(AdminQueue, overflow)
	require.Error(t, err)

	// Acknowledge slot 0's command; only then may it be reused.
	require.NoError(t, e.WriteCompletion(AdminQueue, cmds[0].CID, 0, 0))
	_, err = e.Poll(cmds[0])
	require.NoError(t, err)

	next := &SubmissionEntry{}
	require.NoError(t, e.Submit(AdminQueue, next))
	_, slot := decodeCID(next.CID)
	require.Equal(t, 0, slot)

	_ = pair
}

// Property 5: if A then B are submitted and B's completion arrives first, a
// poll for A must not return B's status; matching is by CID.
func TestOutOfOrderCompletionMatchesByCID(t *testing.T) {
	e, _, _ := newTestEngine(t, 4, 4)

	a := &SubmissionEntry{}
	require.NoError(t, e.Submit(AdminQueue, a))

	b := &SubmissionEntry{}
	require.NoError(t, e.Submit(AdminQueue, b))

	require.NoError(t, e.WriteCompletion(AdminQueue, b.CID, 0, 0xB))
	completionB, err := e.Poll(b)
	require.NoError(t, err)
	require.Equal(t, b.CID, completionB.CID)
	require.Equal(t, uint32(0xB), completionB.DW0)

	require.NoError(t, e.WriteCompletion(AdminQueue, a.CID, 0, 0xA))
	completionA, err := e.Poll(a)
	require.NoError(t, err)
	require.Equal(t, a.CID, completionA.CID)
	require.Equal(t, uint32(0xA), completionA.DW0)
}

func TestCreateIOQueuePairAllocatesLowestFreeID(t *testing.T) {
	region := dma.NewRegion(1 << 20)
	e := NewEngine(0x40000000, 0)

	p0, err := e.CreateIOQueuePair(region, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 0, p0.ID())

	p1, err := e.CreateIOQueuePair(region, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 1, p1.ID())

	require.NoError(t, e.DeleteIOQueuePair(0))

	p2, err := e.CreateIOQueuePair(region, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 0, p2.ID())
}

func TestResetIDsClearsAdminAndIOPairs(t *testing.T) {
	region := dma.NewRegion(1 << 20)
	e := NewEngine(0x40000000, 0)

	_, err := e.CreateAdmin(region, 4, 4)
	require.NoError(t, err)
	_, err = e.CreateIOQueuePair(region, 4, 4)
	require.NoError(t, err)

	e.ResetIDs()

	_, ok := e.PairFor(AdminQueue)
	require.False(t, ok)
	_, ok = e.PairFor(0)
	require.False(t, ok)

	p, err := e.CreateIOQueuePair(region, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 0, p.ID())
}
