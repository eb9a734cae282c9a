package coordinator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/menmos/menmos/pkg/events"
	"github.com/menmos/menmos/pkg/menmoserr"
)

type registerNodeRequest struct {
	NodeID             string `json:"node_id"`
	Address            string `json:"address"`
	PublicIP           string `json:"public_ip,omitempty"`
	AdvertisedCapacity uint64 `json:"advertised_capacity"`
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.NodeID == "" || req.Address == "" {
		writeError(w, menmoserr.New(menmoserr.BadRequest, "node_id and address are required"))
		return
	}
	if err := s.rtr.Register(req.NodeID, req.Address, req.PublicIP, req.AdvertisedCapacity); err != nil {
		writeError(w, err)
		return
	}
	s.events.Publish(&events.Event{ID: req.NodeID, Type: events.EventNodeJoined})
	w.WriteHeader(http.StatusCreated)
}

type heartbeatRequest struct {
	AvailableBytes uint64 `json:"available_bytes"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.rtr.Heartbeat(nodeID, req.AvailableBytes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
