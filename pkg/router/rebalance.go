package router

import (
	"sort"
	"time"

	"github.com/menmos/menmos/pkg/types"
)

// Move is one advisory instruction from a rebalance plan: move id from
// src to dst. The coordinator issues Move to the source node, which
// streams the payload to dst and confirms; C2's blob_to_node mapping
// is updated only once that confirmation arrives (spec §4.5).
type Move struct {
	BlobID types.BlobID
	Src    string
	Dst    string
}

// Rebalance computes (but does not execute) a plan for one cycle: when
// the utilisation gap between the most- and least-utilised live nodes
// exceeds threshold, the plan holds at most one move, from the most-
// to the least-utilised node. Blobs already marked in-flight are
// skipped. A single live node always yields an empty plan.
func (r *Router) Rebalance(threshold float64) ([]Move, error) {
	r.mu.RLock()
	type util struct {
		id    string
		ratio float64
		avail uint64
	}
	var utils []util
	for id, s := range r.live {
		if time.Since(s.lastSeen) >= r.liveness {
			continue
		}
		total := r.capacity[id]
		if total == 0 {
			continue
		}
		used := float64(total-s.availableBytes) / float64(total)
		utils = append(utils, util{id: id, ratio: used, avail: s.availableBytes})
	}
	r.mu.RUnlock()

	if len(utils) < 2 {
		return nil, nil
	}

	sort.Slice(utils, func(i, j int) bool { return utils[i].ratio > utils[j].ratio })
	most, least := utils[0], utils[len(utils)-1]
	if most.ratio-least.ratio <= threshold {
		return nil, nil
	}

	candidates, err := r.st.ListByNode(most.id)
	if err != nil {
		return nil, err
	}

	var plan []Move
	for _, id := range candidates {
		if !r.MarkInFlight(id) {
			continue
		}
		plan = append(plan, Move{BlobID: id, Src: most.id, Dst: least.id})
		break // one move per cycle per over-utilised node keeps the plan conservative
	}
	return plan, nil
}
