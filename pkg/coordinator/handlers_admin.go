package coordinator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/types"
)

func badQueryErr(err error) error {
	return menmoserr.Wrap(menmoserr.BadRequest, "invalid query expression", err)
}

// handleFlush implements fsync(): it flushes C2 and returns only
// after the durable sync completes (spec §4.6).
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Fsync(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type moveBlobRequest struct {
	DstNode string `json:"dst_node"`
}

// handleMoveBlob is the admin-only move_blob endpoint. It returns a
// single advisory move in the same shape Rebalance produces (202
// Accepted), marking the blob in-flight so the rebalancer does not
// also try to move it. Nothing is queued; the move is only returned.
func (s *Server) handleMoveBlob(w http.ResponseWriter, r *http.Request) {
	id := types.BlobID(chi.URLParam(r, "id"))
	var req moveBlobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	srcNode, err := s.st.HomeNode(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if srcNode == "" {
		writeError(w, menmoserr.New(menmoserr.NotFound, "blob has no home node"))
		return
	}
	if !s.rtr.MarkInFlight(id) {
		writeError(w, menmoserr.New(menmoserr.Conflict, "blob already has a move in flight"))
		return
	}

	writeJSON(w, http.StatusAccepted, router.Move{BlobID: id, Src: srcNode, Dst: req.DstNode})
}
