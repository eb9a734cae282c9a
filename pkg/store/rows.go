package store

import (
	"encoding/binary"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// AllocateRow assigns a fresh row to id — reused from the free list
// when possible, otherwise the next row past the high-water mark —
// and records the assignment durably. The row is stable across
// restarts (spec §3, invariant 1).
func (s *Store) AllocateRow(id types.BlobID) (types.Row, error) {
	var row types.Row
	err := s.db.Update(func(tx *bolt.Tx) error {
		stack, err := loadFreeStack(tx)
		if err != nil {
			return err
		}

		if len(stack) > 0 {
			row = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		} else {
			hw, err := loadHighWater(tx)
			if err != nil {
				return err
			}
			row = hw
			hw++
			if err := storeHighWater(tx, hw); err != nil {
				return err
			}
		}

		if err := storeFreeStack(tx, stack); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRows).Put([]byte(id), rowKey(row)); err != nil {
			return err
		}
		return tx.Bucket(bucketRowToBlob).Put(rowKey(row), []byte(id))
	})
	if err != nil {
		return 0, menmoserr.Wrap(menmoserr.StorageFailure, "allocating row", err)
	}
	return row, nil
}

// FreeRow returns id's row to the free list and removes the row
// mapping. It is a no-op if id has no row assigned.
func (s *Store) FreeRow(id types.BlobID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRows)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		row := types.Row(binary.BigEndian.Uint32(v))
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRowToBlob).Delete(rowKey(row)); err != nil {
			return err
		}
		stack, err := loadFreeStack(tx)
		if err != nil {
			return err
		}
		stack = append(stack, row)
		return storeFreeStack(tx, stack)
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "freeing row", err)
	}
	return nil
}

// RowOf returns the row assigned to id, and whether one exists.
func (s *Store) RowOf(id types.BlobID) (types.Row, bool, error) {
	var row types.Row
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRows).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		row = types.Row(binary.BigEndian.Uint32(v))
		return nil
	})
	if err != nil {
		return 0, false, menmoserr.Wrap(menmoserr.StorageFailure, "reading row", err)
	}
	return row, found, nil
}

// BlobOfRow reverse-resolves a row back to its blob_id, used by the
// query evaluator to hydrate hits from bitmap positions.
func (s *Store) BlobOfRow(row types.Row) (types.BlobID, bool, error) {
	var id types.BlobID
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRowToBlob).Get(rowKey(row))
		if v != nil {
			id = types.BlobID(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, menmoserr.Wrap(menmoserr.StorageFailure, "resolving row", err)
	}
	return id, found, nil
}

func loadFreeStack(tx *bolt.Tx) ([]types.Row, error) {
	v := tx.Bucket(bucketRowMeta).Get([]byte(keyFreeStack))
	if v == nil {
		return nil, nil
	}
	var stack []types.Row
	if err := json.Unmarshal(v, &stack); err != nil {
		return nil, err
	}
	return stack, nil
}

func storeFreeStack(tx *bolt.Tx, stack []types.Row) error {
	data, err := json.Marshal(stack)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRowMeta).Put([]byte(keyFreeStack), data)
}

func loadHighWater(tx *bolt.Tx) (types.Row, error) {
	v := tx.Bucket(bucketRowMeta).Get([]byte(keyHighWater))
	if v == nil {
		return 0, nil
	}
	return types.Row(binary.BigEndian.Uint32(v)), nil
}

func storeHighWater(tx *bolt.Tx, hw types.Row) error {
	return tx.Bucket(bucketRowMeta).Put([]byte(keyHighWater), rowKey(hw))
}
