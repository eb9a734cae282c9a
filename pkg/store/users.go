package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// PutUser durably records a user, overwriting any existing record with
// the same username.
func (s *Store) PutUser(u *types.User) error {
	data, err := encode(u)
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "encoding user", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Put([]byte(u.Username), data)
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "writing user", err)
	}
	return nil
}

// GetUser returns username's record, or a NotFound error. It
// satisfies pkg/credential.UserLookup.
func (s *Store) GetUser(username string) (*types.User, error) {
	var u types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(username))
		if data == nil {
			return errNotFound
		}
		return decode(data, &u)
	})
	if err == errNotFound {
		return nil, menmoserr.New(menmoserr.NotFound, fmt.Sprintf("user %s not found", username))
	}
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "reading user", err)
	}
	return &u, nil
}

// UserExists reports whether username is already registered, used by
// registration to reject duplicates with Conflict rather than
// overwriting silently.
func (s *Store) UserExists(username string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketUsers).Get([]byte(username)) != nil
		return nil
	})
	if err != nil {
		return false, menmoserr.Wrap(menmoserr.StorageFailure, "checking user", err)
	}
	return exists, nil
}
