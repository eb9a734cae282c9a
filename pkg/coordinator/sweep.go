package coordinator

import (
	"time"

	"github.com/menmos/menmos/pkg/events"
	"github.com/menmos/menmos/pkg/metrics"
	"github.com/menmos/menmos/pkg/types"
)

// runOrphanSweeper scans for blobs stuck in BlobPending past timeout
// and frees their rows, implementing the orphan-sweeper supplemented
// feature (spec §9) and the "cancelled create_blob" recovery path
// (spec §5). It is grounded on the teacher scheduler's ticker-loop
// shape.
func (s *Server) runOrphanSweeper(timeout time.Duration) {
	interval := timeout / 5
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sweepOnce(timeout); err != nil {
				s.logger.Error().Err(err).Msg("orphan sweep cycle failed")
			}
		case <-s.sweepStop:
			return
		}
	}
}

func (s *Server) sweepOnce(timeout time.Duration) error {
	cutoff := time.Now().Add(-timeout)
	var stale []types.BlobID

	err := s.st.AllBlobs(func(id types.BlobID, meta *types.BlobMeta) error {
		if meta.Status == types.BlobPending && meta.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range stale {
		s.locks.Lock(string(id))
		s.reapOrphan(id)
		s.locks.Unlock(string(id))
	}
	return nil
}

func (s *Server) reapOrphan(id types.BlobID) {
	meta, err := s.st.GetMeta(id)
	if err != nil {
		return
	}
	if meta.Status != types.BlobPending {
		return
	}

	row, found, err := s.st.RowOf(id)
	if err != nil {
		return
	}

	formerNode, err := s.st.Delete(id)
	if err != nil {
		s.logger.Error().Err(err).Str("blob_id", string(id)).Msg("failed to reap orphaned blob")
		return
	}
	if found {
		s.idx.Unindex(row, meta)
		_ = s.st.FreeRow(id)
		if err := s.st.RefreshAncestors(s.idx); err != nil {
			s.logger.Error().Err(err).Str("blob_id", string(id)).Msg("failed to refresh ancestors after reaping orphan")
		}
	}
	if formerNode != "" {
		s.rtr.OnDelete(id, formerNode, meta.Owner, meta.Size)
	}
	metrics.BlobsOrphaned.Inc()
	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobOrphaned})
	s.logger.Info().Str("blob_id", string(id)).Msg("reaped orphaned blob")
}

// ConfirmWrite marks a pending blob committed once its home storage
// node reports a successful payload write. The actual node-to-
// coordinator reporting channel belongs to the excluded HTTP-framing
// layer; this method is the reconciliation step it would call.
func (s *Server) ConfirmWrite(id types.BlobID) error {
	s.locks.Lock(string(id))
	defer s.locks.Unlock(string(id))

	meta, err := s.st.GetMeta(id)
	if err != nil {
		return err
	}
	if meta.Status != types.BlobPending {
		return nil
	}
	updated := *meta
	updated.Status = types.BlobCommitted
	nodeID, err := s.st.HomeNode(id)
	if err != nil {
		return err
	}
	if err := s.st.PutMeta(id, &updated, nodeID); err != nil {
		return err
	}
	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobCommitted})
	return nil
}

// ConfirmMove completes an advisory rebalance move once the source
// node reports the destination has the payload: it updates C2's
// home-node mapping and releases the in-flight reservation. Like
// ConfirmWrite, the actual node confirmation channel is out of scope.
func (s *Server) ConfirmMove(id types.BlobID, dstNode string) error {
	s.locks.Lock(string(id))
	defer s.locks.Unlock(string(id))
	defer s.rtr.UnmarkInFlight(id)

	meta, err := s.st.GetMeta(id)
	if err != nil {
		return err
	}
	srcNode, err := s.st.HomeNode(id)
	if err != nil {
		return err
	}
	if err := s.st.Reassign(id, dstNode); err != nil {
		return err
	}
	if srcNode != "" {
		s.rtr.OnDelete(id, srcNode, meta.Owner, meta.Size)
	}
	s.rtr.OnWrite(id, dstNode, meta.Owner, meta.Size)
	metrics.RebalanceMovesTotal.Inc()
	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobMoved, Metadata: map[string]string{"src": srcNode, "dst": dstNode}})
	return nil
}
