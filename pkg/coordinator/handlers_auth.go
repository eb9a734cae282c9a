package coordinator

import (
	"net/http"

	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := s.cred.IssueSession(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, menmoserr.New(menmoserr.BadRequest, "username and password are required"))
		return
	}

	exists, err := s.st.UserExists(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if exists {
		writeError(w, menmoserr.New(menmoserr.Conflict, "username already registered"))
		return
	}

	hash, err := credential.HashPassword(req.Password)
	if err != nil {
		writeError(w, menmoserr.Wrap(menmoserr.StorageFailure, "hashing password", err))
		return
	}

	user := &types.User{Username: req.Username, PasswordHash: hash, IsAdmin: req.IsAdmin}
	if err := s.st.PutUser(user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
