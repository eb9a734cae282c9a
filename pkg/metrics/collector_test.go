package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/store"
	"github.com/menmos/menmos/pkg/types"
)

func TestCollectSamplesNodeAndBlobCounts(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.PutNode(&types.NodeRecord{ID: "node-1", Address: "10.0.0.1:9000", LastSeen: time.Now()}))
	require.NoError(t, st.PutNode(&types.NodeRecord{ID: "node-2", Address: "10.0.0.2:9000", LastSeen: time.Now().Add(-time.Hour)}))

	rtr, err := router.New(st, router.Options{LivenessWindow: time.Minute})
	require.NoError(t, err)
	require.NoError(t, rtr.Heartbeat("node-1", 1<<20))

	id := types.NewBlobID()
	require.NoError(t, st.PutMeta(id, &types.BlobMeta{ID: id, Name: "f", Owner: "alice", Status: types.BlobCommitted}, "node-1"))
	_, err = st.AllocateRow(id)
	require.NoError(t, err)

	c := NewCollector(st, rtr)
	c.collect()

	assert := func(metric float64, want float64, msg string) {
		t.Helper()
		if metric != want {
			t.Fatalf("%s: got %v, want %v", msg, metric, want)
		}
	}
	assert(testutil.ToFloat64(NodesTotal.WithLabelValues("live")), 1, "live node gauge")
	assert(testutil.ToFloat64(NodesTotal.WithLabelValues("dead")), 1, "dead node gauge")
	assert(testutil.ToFloat64(BlobsTotal.WithLabelValues(string(types.BlobCommitted))), 1, "committed blob gauge")
	assert(testutil.ToFloat64(IndexedRowsTotal), 1, "indexed rows gauge")
}

func TestCollectorStartStopDoesNotPanic(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rtr, err := router.New(st, router.Options{LivenessWindow: time.Minute})
	require.NoError(t, err)

	c := NewCollector(st, rtr)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
