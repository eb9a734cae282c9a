package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/menmoserr"
)

type ctxKey int

const principalKey ctxKey = iota

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// requireSession extracts and verifies the bearer session token,
// rejecting the request with Unauthorized if absent or invalid.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, menmoserr.New(menmoserr.Unauthorized, "missing session token"))
			return
		}
		principal, err := s.cred.VerifySession(tok)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin principals with Forbidden. It must
// run after requireSession.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFrom(r.Context())
		if principal == nil || !principal.IsAdmin {
			writeError(w, menmoserr.New(menmoserr.Forbidden, "admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) *credential.Principal {
	p, _ := ctx.Value(principalKey).(*credential.Principal)
	return p
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// errorBody is the wire shape spec.md §6 fixes for every error reply.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := menmoserr.StorageFailure
	if me, ok := err.(*menmoserr.Error); ok {
		status = me.HTTPStatus()
		kind = me.Kind
	}
	body := errorBody{}
	body.Error.Kind = string(kind)
	body.Error.Message = err.Error()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return menmoserr.Wrap(menmoserr.BadRequest, "invalid request body", err)
	}
	return nil
}
