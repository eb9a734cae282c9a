package store

import (
	bolt "go.etcd.io/bbolt"

	"github.com/menmos/menmos/pkg/bitmap"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// Recover runs the startup consistency pass (spec §4.2): it rebuilds
// the free-row stack from any row below the high-water mark that has
// no assigned blob, and replays every surviving blob into idx so the
// in-memory bitmap index starts in agreement with the durable record.
// It must run once, before the coordinator accepts traffic.
func (s *Store) Recover(idx *bitmap.Index) error {
	type assigned struct {
		row  types.Row
		id   types.BlobID
		meta *types.BlobMeta
	}
	var live []assigned

	err := s.db.Update(func(tx *bolt.Tx) error {
		hw, err := loadHighWater(tx)
		if err != nil {
			return err
		}

		inUse := make(map[types.Row]bool)
		c := tx.Bucket(bucketRows).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			row := types.Row(rowFromKey(v))
			inUse[row] = true

			data := tx.Bucket(bucketBlobs).Get(k)
			if data == nil {
				continue
			}
			var meta types.BlobMeta
			if err := decode(data, &meta); err != nil {
				return err
			}
			live = append(live, assigned{row: row, id: types.BlobID(k), meta: &meta})
		}

		stack, err := loadFreeStack(tx)
		if err != nil {
			return err
		}
		freed := make(map[types.Row]bool, len(stack))
		for _, r := range stack {
			freed[r] = true
		}
		for r := types.Row(0); r < hw; r++ {
			if !inUse[r] && !freed[r] {
				stack = append(stack, r)
			}
		}
		return storeFreeStack(tx, stack)
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "recovering metadata store", err)
	}

	for _, a := range live {
		idx.Index(a.row, a.meta)
	}
	return s.RefreshAncestors(idx)
}

func rowFromKey(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(b); i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}
