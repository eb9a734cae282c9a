package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

type fakeUsers struct {
	users map[string]*types.User
}

func (f *fakeUsers) GetUser(username string) (*types.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, menmoserr.New(menmoserr.NotFound, "no such user")
	}
	return u, nil
}

func newTestService(t *testing.T) (*Service, *fakeUsers) {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*types.User{
		"alice": {Username: "alice", PasswordHash: hash, IsAdmin: true},
	}}
	key := make([]byte, 32)
	svc, err := New(key, users, time.Hour, time.Minute)
	require.NoError(t, err)
	return svc, users
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	_, err := New([]byte("too-short"), &fakeUsers{}, time.Hour, time.Minute)
	assert.Error(t, err)
}

func TestIssueAndVerifySessionRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	token, err := svc.IssueSession("alice", "s3cret")
	require.NoError(t, err)

	principal, err := svc.VerifySession(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)
	assert.True(t, principal.IsAdmin)
}

func TestIssueSessionRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.IssueSession("alice", "wrong")
	assert.Equal(t, menmoserr.Unauthorized, menmoserr.KindOf(err))
}

func TestIssueSessionRejectsUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.IssueSession("nobody", "whatever")
	assert.Equal(t, menmoserr.Unauthorized, menmoserr.KindOf(err))
}

func TestVerifySessionRejectsGarbageToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.VerifySession("not-a-jwt")
	assert.Equal(t, menmoserr.Unauthorized, menmoserr.KindOf(err))
}

func TestVerifySessionRejectsExpiredToken(t *testing.T) {
	users := &fakeUsers{}
	key := make([]byte, 32)
	svc, err := New(key, users, -time.Second, time.Minute)
	require.NoError(t, err)
	users.users = map[string]*types.User{"alice": {Username: "alice", PasswordHash: mustHash(t, "pw")}}

	token, err := svc.IssueSession("alice", "pw")
	require.NoError(t, err)

	_, err = svc.VerifySession(token)
	assert.Equal(t, menmoserr.Unauthorized, menmoserr.KindOf(err))
}

func TestIssueAndVerifyGrantRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	id := types.NewBlobID()

	grant, err := svc.IssueGrant(id, GrantRead, 0)
	require.NoError(t, err)

	assert.NoError(t, svc.VerifyGrant(grant, id, GrantRead))
}

func TestVerifyGrantRejectsWrongBlobOrOp(t *testing.T) {
	svc, _ := newTestService(t)
	id := types.NewBlobID()
	other := types.NewBlobID()

	grant, err := svc.IssueGrant(id, GrantRead, 0)
	require.NoError(t, err)

	assert.Error(t, svc.VerifyGrant(grant, other, GrantRead))
	assert.Error(t, svc.VerifyGrant(grant, id, GrantWrite))
}

func TestVerifyGrantRejectsExpiredGrant(t *testing.T) {
	svc, _ := newTestService(t)
	id := types.NewBlobID()

	grant, err := svc.IssueGrant(id, GrantRead, -time.Second)
	require.NoError(t, err)

	err = svc.VerifyGrant(grant, id, GrantRead)
	assert.Equal(t, menmoserr.Forbidden, menmoserr.KindOf(err))
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password)
	require.NoError(t, err)
	return h
}
