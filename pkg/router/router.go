// Package router implements the coordinator's node-routing component
// (spec component C5): storage node registration and liveness, the
// pick_node placement policy, and the background rebalancer. Its
// ticker-loop shape is grounded on the teacher's scheduler package.
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menmos/menmos/pkg/log"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/store"
	"github.com/menmos/menmos/pkg/types"
)

// liveState is the router's in-memory view of one node's liveness and
// capacity, refreshed by Heartbeat and never persisted directly — the
// durable record lives in C2 (types.NodeRecord via pkg/store).
type liveState struct {
	availableBytes uint64
	lastSeen       time.Time
}

// Router is the coordinator's C5 implementation.
type Router struct {
	st     *store.Store
	logger zerolog.Logger

	liveness time.Duration

	mu        sync.RWMutex
	live      map[string]*liveState
	capacity  map[string]uint64          // node_id -> advertised total capacity
	ownedBy   map[string]map[string]int // node_id -> owner -> blob count hosted

	inflightMu sync.Mutex
	inflight   map[types.BlobID]bool

	stopCh chan struct{}
}

// Options configures a Router's tunables; DefaultOptions() mirrors
// pkg/config.Config's router fields.
type Options struct {
	LivenessWindow      time.Duration
	RebalanceInterval   time.Duration
	RebalanceThreshold  float64 // utilisation ratio gap that triggers a move
}

// DefaultOptions returns the spec's suggested tunables.
func DefaultOptions() Options {
	return Options{
		LivenessWindow:     30 * time.Second,
		RebalanceInterval:  1 * time.Minute,
		RebalanceThreshold: 0.25,
	}
}

// New builds a Router and seeds its in-memory liveness/locality view
// from every node and blob currently recorded in st.
func New(st *store.Store, opts Options) (*Router, error) {
	r := &Router{
		st:       st,
		logger:   log.WithComponent("router"),
		liveness: opts.LivenessWindow,
		live:     make(map[string]*liveState),
		capacity: make(map[string]uint64),
		ownedBy:  make(map[string]map[string]int),
		inflight: make(map[types.BlobID]bool),
		stopCh:   make(chan struct{}),
	}

	nodes, err := st.AllNodes()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		r.live[n.ID] = &liveState{availableBytes: n.AvailableBytes, lastSeen: n.LastSeen}
		// capacity is seeded from the last known available_bytes, since
		// the durable record keeps no separate advertised-total field;
		// the next heartbeat or register call is authoritative.
		r.capacity[n.ID] = n.AvailableBytes
		r.ownedBy[n.ID] = make(map[string]int)
	}

	err = st.AllBlobs(func(id types.BlobID, meta *types.BlobMeta) error {
		nodeID, err := st.HomeNode(id)
		if err != nil || nodeID == "" {
			return nil
		}
		if r.ownedBy[nodeID] == nil {
			r.ownedBy[nodeID] = make(map[string]int)
		}
		r.ownedBy[nodeID][meta.Owner]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Start launches the background rebalance loop.
func (r *Router) Start(opts Options) {
	go r.run(opts.RebalanceInterval, opts.RebalanceThreshold)
}

// Stop halts the background rebalance loop.
func (r *Router) Stop() {
	close(r.stopCh)
}

func (r *Router) run(interval time.Duration, threshold float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			plan, err := r.Rebalance(threshold)
			if err != nil {
				r.logger.Error().Err(err).Msg("rebalance cycle failed")
				continue
			}
			if len(plan) > 0 {
				r.logger.Info().Int("moves", len(plan)).Msg("rebalance plan computed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Register upserts a node's registration, initialising an empty blob
// set if the node is new.
func (r *Router) Register(nodeID, address, publicIP string, advertisedCapacity uint64) error {
	now := time.Now()
	rec := &types.NodeRecord{
		ID:             nodeID,
		Address:        address,
		PublicIP:       publicIP,
		AvailableBytes: advertisedCapacity,
		LastSeen:       now,
	}
	if err := r.st.PutNode(rec); err != nil {
		return err
	}

	r.mu.Lock()
	r.live[nodeID] = &liveState{availableBytes: advertisedCapacity, lastSeen: now}
	r.capacity[nodeID] = advertisedCapacity
	if r.ownedBy[nodeID] == nil {
		r.ownedBy[nodeID] = make(map[string]int)
	}
	r.mu.Unlock()

	r.logger.Info().Str("node_id", nodeID).Str("address", address).Msg("node registered")
	return nil
}

// Heartbeat records a node's liveness and remaining capacity.
func (r *Router) Heartbeat(nodeID string, availableBytes uint64) error {
	now := time.Now()
	if err := r.st.TouchNode(nodeID, availableBytes, now); err != nil {
		return err
	}

	r.mu.Lock()
	s, ok := r.live[nodeID]
	if !ok {
		s = &liveState{}
		r.live[nodeID] = s
	}
	s.availableBytes = availableBytes
	s.lastSeen = now
	r.mu.Unlock()

	return nil
}

// IsLive reports whether nodeID has heartbeated within the liveness
// window.
func (r *Router) IsLive(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.live[nodeID]
	if !ok {
		return false
	}
	return time.Since(s.lastSeen) < r.liveness
}

// PickNode selects a home node for a new blob of the given size
// belonging to owner, implementing spec §4.5's three-step policy.
func (r *Router) PickNode(size uint64, owner string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		id        string
		available uint64
	}
	var eligible []candidate
	for id, s := range r.live {
		if time.Since(s.lastSeen) >= r.liveness {
			continue
		}
		if s.availableBytes < size {
			continue
		}
		eligible = append(eligible, candidate{id: id, available: s.availableBytes})
	}
	if len(eligible) == 0 {
		return "", menmoserr.New(menmoserr.NoCapacity, "no live node has sufficient capacity")
	}

	var local []candidate
	for _, c := range eligible {
		if r.ownedBy[c.id][owner] > 0 {
			local = append(local, c)
		}
	}
	pool := eligible
	if len(local) > 0 {
		pool = local
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].available != pool[j].available {
			return pool[i].available > pool[j].available
		}
		return pool[i].id < pool[j].id
	})
	return pool[0].id, nil
}

// OnWrite records that blob_id now lives on nodeID, used when the
// coordinator places a new (still pending) blob and when it confirms a
// rebalance move.
func (r *Router) OnWrite(id types.BlobID, nodeID string, owner string, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[nodeID]; ok && s.availableBytes >= size {
		s.availableBytes -= size
	}
	if r.ownedBy[nodeID] == nil {
		r.ownedBy[nodeID] = make(map[string]int)
	}
	r.ownedBy[nodeID][owner]++
}

// OnDelete records that blob_id no longer lives on nodeID.
func (r *Router) OnDelete(id types.BlobID, nodeID string, owner string, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[nodeID]; ok {
		s.availableBytes += size
	}
	if counts, ok := r.ownedBy[nodeID]; ok {
		if counts[owner] > 0 {
			counts[owner]--
		}
	}
}

// MarkInFlight reserves id so Rebalance skips it while
// a move is in progress, and UnmarkInFlight releases it once the move
// confirms or fails.
func (r *Router) MarkInFlight(id types.BlobID) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if r.inflight[id] {
		return false
	}
	r.inflight[id] = true
	return true
}

// UnmarkInFlight releases id's in-flight reservation.
func (r *Router) UnmarkInFlight(id types.BlobID) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, id)
}
