// Package credential implements the coordinator's session and
// blob-grant issuance and verification (spec component C1). Both
// token kinds are JWTs signed with the cluster-wide encryption key;
// verification never distinguishes a bad signature from an expired
// or mis-scoped token to the caller, by design.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// GrantOp is the operation a blob grant authorizes.
type GrantOp string

const (
	GrantRead  GrantOp = "read"
	GrantWrite GrantOp = "write"
)

// Principal is the authenticated identity behind a verified session.
type Principal struct {
	Username string
	IsAdmin  bool
}

// UserLookup is the subset of the metadata store (C2) the credential
// service needs to authenticate a login.
type UserLookup interface {
	GetUser(username string) (*types.User, error)
}

// Service issues and verifies session tokens and blob grants.
type Service struct {
	key        []byte
	users      UserLookup
	sessionTTL time.Duration
	grantTTL   time.Duration
}

// New creates a credential Service. key must be exactly 32 bytes,
// derived from the cluster-wide encryption key.
func New(key []byte, users UserLookup, sessionTTL, grantTTL time.Duration) (*Service, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cluster key must be 32 bytes, got %d", len(key))
	}
	return &Service{key: key, users: users, sessionTTL: sessionTTL, grantTTL: grantTTL}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Admin bool `json:"adm"`
}

type grantClaims struct {
	jwt.RegisteredClaims
	BlobID types.BlobID `json:"bid"`
	Op     GrantOp      `json:"op"`
}

// IssueSession authenticates username/password and, on success,
// mints a long-lived session token.
func (s *Service) IssueSession(username, password string) (string, error) {
	user, err := s.users.GetUser(username)
	if err != nil {
		return "", menmoserr.Wrap(menmoserr.Unauthorized, "invalid credentials", err)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return "", menmoserr.New(menmoserr.Unauthorized, "invalid credentials")
	}

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		},
		Admin: user.IsAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", menmoserr.Wrap(menmoserr.StorageFailure, "signing session token", err)
	}
	return signed, nil
}

// VerifySession validates a session token and returns the Principal
// it authenticates. Every failure mode — bad signature, malformed
// token, expiry — collapses to the same Unauthorized kind.
func (s *Service) VerifySession(tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc)
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.Unauthorized, "invalid session", err)
	}
	return &Principal{Username: claims.Subject, IsAdmin: claims.Admin}, nil
}

// IssueGrant mints a short-lived, single-blob, single-operation
// authorization. ttl of zero uses the service default.
func (s *Service) IssueGrant(blobID types.BlobID, op GrantOp, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.grantTTL
	}
	now := time.Now()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		BlobID: blobID,
		Op:     op,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", menmoserr.Wrap(menmoserr.StorageFailure, "signing blob grant", err)
	}
	return signed, nil
}

// VerifyGrant validates that tokenStr authorizes op on blobID. Any
// mismatch — signature, expiry, wrong blob, wrong operation — yields
// the same Rejected (Forbidden) kind; the caller is never told which.
func (s *Service) VerifyGrant(tokenStr string, blobID types.BlobID, op GrantOp) error {
	claims := &grantClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc)
	if err != nil {
		return menmoserr.Wrap(menmoserr.Forbidden, "grant rejected", err)
	}
	if claims.BlobID != blobID || claims.Op != op {
		return menmoserr.New(menmoserr.Forbidden, "grant rejected")
	}
	return nil
}

func (s *Service) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return s.key, nil
}
