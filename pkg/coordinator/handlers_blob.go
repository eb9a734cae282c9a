package coordinator

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/events"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

func (s *Server) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	var req createBlobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	blobType := types.BlobTypeFile
	if req.BlobType == string(types.BlobTypeDirectory) {
		blobType = types.BlobTypeDirectory
	}

	id := types.NewBlobID()
	s.locks.Lock(string(id))
	defer s.locks.Unlock(string(id))

	var parentID *types.BlobID
	if req.ParentID != nil {
		parent := types.BlobID(*req.ParentID)
		parentMeta, err := s.st.GetMeta(parent)
		if err != nil {
			writeError(w, err)
			return
		}
		if parentMeta.Owner != principal.Username {
			writeError(w, menmoserr.New(menmoserr.Forbidden, "parent is owned by another user"))
			return
		}
		cyc, err := s.st.WouldCycle(id, parent)
		if err != nil {
			writeError(w, err)
			return
		}
		if cyc {
			writeError(w, menmoserr.New(menmoserr.Conflict, "parent pointer would introduce a cycle"))
			return
		}
		parentID = &parent
	}

	nodeID, err := s.rtr.PickNode(req.Size, principal.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	meta := &types.BlobMeta{
		ID:         id,
		Name:       req.Name,
		Size:       req.Size,
		BlobType:   blobType,
		Owner:      principal.Username,
		ParentID:   parentID,
		Tags:       req.Tags,
		Fields:     fieldsFromDTO(req.Fields),
		Status:     types.BlobPending,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := s.st.PutMeta(id, meta, nodeID); err != nil {
		writeError(w, err)
		return
	}
	row, err := s.st.AllocateRow(id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.idx.Index(row, meta)
	if parentID != nil {
		if err := s.st.RefreshAncestors(s.idx); err != nil {
			writeError(w, err)
			return
		}
	}
	s.rtr.OnWrite(id, nodeID, principal.Username, req.Size)

	grant, err := s.cred.IssueGrant(id, credential.GrantWrite, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobCreated, Metadata: map[string]string{"node_id": nodeID, "owner": principal.Username}})

	redirect := s.nodeRedirect(nodeID)
	writeJSON(w, http.StatusCreated, createBlobResponse{BlobID: string(id), NodeRedirect: redirect, WriteGrant: grant})
}

func (s *Server) handleReadBlob(w http.ResponseWriter, r *http.Request) {
	id := types.BlobID(chi.URLParam(r, "id"))
	principal := principalFrom(r.Context())

	meta, err := s.st.GetMeta(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if meta.Owner != principal.Username && !principal.IsAdmin {
		writeError(w, menmoserr.New(menmoserr.Forbidden, "not the owner"))
		return
	}

	nodeID, err := s.st.HomeNode(id)
	if err != nil {
		writeError(w, err)
		return
	}
	grant, err := s.cred.IssueGrant(id, credential.GrantRead, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{NodeRedirect: s.nodeRedirect(nodeID), Grant: grant})
}

func (s *Server) handleOverwriteBlob(w http.ResponseWriter, r *http.Request) {
	id := types.BlobID(chi.URLParam(r, "id"))
	principal := principalFrom(r.Context())

	meta, err := s.st.GetMeta(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if meta.Owner != principal.Username && !principal.IsAdmin {
		writeError(w, menmoserr.New(menmoserr.Forbidden, "not the owner"))
		return
	}

	nodeID, err := s.st.HomeNode(id)
	if err != nil {
		writeError(w, err)
		return
	}
	grant, err := s.cred.IssueGrant(id, credential.GrantWrite, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{NodeRedirect: s.nodeRedirect(nodeID), Grant: grant})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id := types.BlobID(chi.URLParam(r, "id"))
	principal := principalFrom(r.Context())

	s.locks.Lock(string(id))
	defer s.locks.Unlock(string(id))

	old, err := s.st.GetMeta(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if old.Owner != principal.Username && !principal.IsAdmin {
		writeError(w, menmoserr.New(menmoserr.Forbidden, "not the owner"))
		return
	}

	var req updateMetaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated := *old
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Tags != nil {
		updated.Tags = req.Tags
	}
	if req.Fields != nil {
		updated.Fields = fieldsFromDTO(req.Fields)
	}
	if req.ParentID != nil {
		parent := types.BlobID(*req.ParentID)
		parentMeta, err := s.st.GetMeta(parent)
		if err != nil {
			writeError(w, err)
			return
		}
		if parentMeta.Owner != principal.Username {
			writeError(w, menmoserr.New(menmoserr.Forbidden, "parent is owned by another user"))
			return
		}
		cyc, err := s.st.WouldCycle(id, parent)
		if err != nil {
			writeError(w, err)
			return
		}
		if cyc {
			writeError(w, menmoserr.New(menmoserr.Conflict, "parent pointer would introduce a cycle"))
			return
		}
		updated.ParentID = &parent
	}
	updated.ModifiedAt = time.Now()

	nodeID, err := s.st.HomeNode(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.PutMeta(id, &updated, nodeID); err != nil {
		writeError(w, err)
		return
	}

	row, found, err := s.st.RowOf(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if found {
		s.idx.Reindex(row, old, &updated)
	}
	if req.ParentID != nil {
		if err := s.st.RefreshAncestors(s.idx); err != nil {
			writeError(w, err)
			return
		}
	}
	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobUpdated})

	writeJSON(w, http.StatusOK, metaToDTO(&updated))
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	id := types.BlobID(chi.URLParam(r, "id"))
	principal := principalFrom(r.Context())

	s.locks.Lock(string(id))
	defer s.locks.Unlock(string(id))

	meta, err := s.st.GetMeta(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if meta.Owner != principal.Username && !principal.IsAdmin {
		writeError(w, menmoserr.New(menmoserr.Forbidden, "not the owner"))
		return
	}

	row, found, err := s.st.RowOf(id)
	if err != nil {
		writeError(w, err)
		return
	}

	formerNode, err := s.st.Delete(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if found {
		s.idx.Unindex(row, meta)
		if err := s.st.FreeRow(id); err != nil {
			writeError(w, err)
			return
		}
		if err := s.st.RefreshAncestors(s.idx); err != nil {
			writeError(w, err)
			return
		}
	}
	if formerNode != "" {
		s.rtr.OnDelete(id, formerNode, meta.Owner, meta.Size)
	}
	s.events.Publish(&events.Event{ID: string(id), Type: events.EventBlobDeleted})

	w.WriteHeader(http.StatusNoContent)
}

// nodeRedirect returns the address a client should use to reach
// nodeID directly, preferring its advertised public address.
func (s *Server) nodeRedirect(nodeID string) string {
	node, err := s.st.GetNode(nodeID)
	if err != nil {
		return ""
	}
	if node.PublicIP != "" {
		return node.PublicIP
	}
	return node.Address
}
