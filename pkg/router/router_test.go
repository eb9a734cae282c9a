package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/store"
	"github.com/menmos/menmos/pkg/types"
)

func newTestRouter(t *testing.T) (*Router, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r, err := New(st, Options{LivenessWindow: time.Minute})
	require.NoError(t, err)
	return r, st
}

func TestRegisterAndIsLive(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<30))
	assert.True(t, r.IsLive("node-1"))
	assert.False(t, r.IsLive("node-unknown"))
}

func TestIsLiveExpiresAfterLivenessWindow(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r, err := New(st, Options{LivenessWindow: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<30))

	time.Sleep(5 * time.Millisecond)
	assert.False(t, r.IsLive("node-1"))
}

func TestHeartbeatUpdatesAvailableBytes(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<30))
	require.NoError(t, r.Heartbeat("node-1", 1<<20))

	picked, err := r.PickNode(1<<20, "alice")
	require.NoError(t, err)
	assert.Equal(t, "node-1", picked)

	_, err = r.PickNode(1<<21, "alice")
	assert.Equal(t, menmoserr.NoCapacity, menmoserr.KindOf(err))
}

func TestPickNodeRejectsWhenNoCapacity(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.PickNode(1024, "alice")
	require.Error(t, err)
	assert.Equal(t, menmoserr.NoCapacity, menmoserr.KindOf(err))
}

func TestPickNodePrefersLocality(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<30))
	require.NoError(t, r.Register("node-2", "10.0.0.2:9000", "", 1<<30))

	// node-2 has more free capacity, but node-1 already hosts alice's data.
	r.OnWrite(types.NewBlobID(), "node-1", "alice", 1024)

	picked, err := r.PickNode(1024, "alice")
	require.NoError(t, err)
	assert.Equal(t, "node-1", picked, "locality pool must win over a higher-capacity stranger node")
}

func TestPickNodeFallsBackToHighestCapacityWhenNoLocalOwner(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<20))
	require.NoError(t, r.Register("node-2", "10.0.0.2:9000", "", 1<<30))

	picked, err := r.PickNode(1024, "nobody-owns-anything-yet")
	require.NoError(t, err)
	assert.Equal(t, "node-2", picked, "with no local candidates, the highest-capacity node wins")
}

func TestPickNodeTieBreaksOnNodeID(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-b", "10.0.0.2:9000", "", 1<<20))
	require.NoError(t, r.Register("node-a", "10.0.0.1:9000", "", 1<<20))

	picked, err := r.PickNode(1024, "alice")
	require.NoError(t, err)
	assert.Equal(t, "node-a", picked)
}

func TestOnWriteAndOnDeleteAdjustAccounting(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1024))

	id := types.NewBlobID()
	r.OnWrite(id, "node-1", "alice", 512)
	_, err := r.PickNode(600, "bob")
	assert.Equal(t, menmoserr.NoCapacity, menmoserr.KindOf(err))

	r.OnDelete(id, "node-1", "alice", 512)
	picked, err := r.PickNode(600, "bob")
	require.NoError(t, err)
	assert.Equal(t, "node-1", picked)
}

func TestMarkInFlightPreventsDoubleReservation(t *testing.T) {
	r, _ := newTestRouter(t)
	id := types.NewBlobID()

	assert.True(t, r.MarkInFlight(id))
	assert.False(t, r.MarkInFlight(id), "a second reservation of the same blob must fail")

	r.UnmarkInFlight(id)
	assert.True(t, r.MarkInFlight(id), "after releasing, the blob can be reserved again")
}

func TestRebalanceNoOpWithFewerThanTwoLiveNodes(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1<<30))

	plan, err := r.Rebalance(0.1)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestRebalanceNoOpWithinThreshold(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1000))
	require.NoError(t, r.Register("node-2", "10.0.0.2:9000", "", 1000))
	require.NoError(t, r.Heartbeat("node-1", 900))
	require.NoError(t, r.Heartbeat("node-2", 850))

	plan, err := r.Rebalance(0.5)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestRebalanceProposesMoveWhenImbalanced(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, r.Register("node-1", "10.0.0.1:9000", "", 1000))
	require.NoError(t, r.Register("node-2", "10.0.0.2:9000", "", 1000))
	// node-1 is almost full, node-2 is almost empty.
	require.NoError(t, r.Heartbeat("node-1", 10))
	require.NoError(t, r.Heartbeat("node-2", 990))

	id := types.NewBlobID()
	require.NoError(t, st.PutMeta(id, &types.BlobMeta{ID: id, Name: "x", Owner: "alice", Status: types.BlobCommitted}, "node-1"))

	plan, err := r.Rebalance(0.1)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "node-1", plan[0].Src)
	assert.Equal(t, "node-2", plan[0].Dst)
	assert.Equal(t, id, plan[0].BlobID)
}
