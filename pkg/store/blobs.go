package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// PutMeta durably records meta and its home node in one transaction.
// blob_to_node and node_blobs are kept in lockstep with blobs so
// invariant 1 (exactly one row, exactly one home node) never
// observes a torn intermediate state.
func (s *Store) PutMeta(id types.BlobID, meta *types.BlobMeta, nodeID string) error {
	data, err := encode(meta)
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "encoding blob metadata", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Put([]byte(id), data); err != nil {
			return err
		}
		if nodeID == "" {
			return nil
		}
		if prev := tx.Bucket(bucketBlobToNode).Get([]byte(id)); prev != nil && string(prev) != nodeID {
			if err := tx.Bucket(bucketNodeBlobs).Delete(nodeBlobKey(string(prev), id)); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketBlobToNode).Put([]byte(id), []byte(nodeID)); err != nil {
			return err
		}
		return tx.Bucket(bucketNodeBlobs).Put(nodeBlobKey(nodeID, id), sizeBytes(meta.Size))
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "writing blob metadata", err)
	}
	s.invalidateAncestorCache(id)
	return nil
}

// GetMeta returns the durable record for id, or a NotFound error.
func (s *Store) GetMeta(id types.BlobID) (*types.BlobMeta, error) {
	var meta types.BlobMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get([]byte(id))
		if data == nil {
			return errNotFound
		}
		return decode(data, &meta)
	})
	if err == errNotFound {
		return nil, menmoserr.New(menmoserr.NotFound, fmt.Sprintf("blob %s not found", id))
	}
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "reading blob metadata", err)
	}
	return &meta, nil
}

// HomeNode returns the node_id currently hosting id, or "" if unset.
func (s *Store) HomeNode(id types.BlobID) (string, error) {
	var nodeID string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketBlobToNode).Get([]byte(id)); v != nil {
			nodeID = string(v)
		}
		return nil
	})
	if err != nil {
		return "", menmoserr.Wrap(menmoserr.StorageFailure, "reading home node", err)
	}
	return nodeID, nil
}

// Delete removes id from blobs, blob_to_node, and node_blobs in one
// transaction, returning its former home node (if any) so the caller
// can instruct that node to delete the payload.
func (s *Store) Delete(id types.BlobID) (string, error) {
	var formerNode string
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBlobs).Get([]byte(id)) == nil {
			return errNotFound
		}
		if v := tx.Bucket(bucketBlobToNode).Get([]byte(id)); v != nil {
			formerNode = string(v)
			if err := tx.Bucket(bucketNodeBlobs).Delete(nodeBlobKey(formerNode, id)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketBlobToNode).Delete([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketBlobs).Delete([]byte(id))
	})
	if err == errNotFound {
		return "", menmoserr.New(menmoserr.NotFound, fmt.Sprintf("blob %s not found", id))
	}
	if err != nil {
		return "", menmoserr.Wrap(menmoserr.StorageFailure, "deleting blob metadata", err)
	}
	s.invalidateAncestorCache(id)
	return formerNode, nil
}

// Reassign updates id's home node without touching its metadata,
// used when the router's rebalance protocol confirms a move.
func (s *Store) Reassign(id types.BlobID, newNodeID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketBlobs).Get([]byte(id))
		if meta == nil {
			return errNotFound
		}
		var bm types.BlobMeta
		if err := decode(meta, &bm); err != nil {
			return err
		}
		if prev := tx.Bucket(bucketBlobToNode).Get([]byte(id)); prev != nil {
			if err := tx.Bucket(bucketNodeBlobs).Delete(nodeBlobKey(string(prev), id)); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketBlobToNode).Put([]byte(id), []byte(newNodeID)); err != nil {
			return err
		}
		return tx.Bucket(bucketNodeBlobs).Put(nodeBlobKey(newNodeID, id), sizeBytes(bm.Size))
	})
	if err == errNotFound {
		return menmoserr.New(menmoserr.NotFound, fmt.Sprintf("blob %s not found", id))
	}
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "reassigning blob", err)
	}
	return nil
}

// ListByNode returns every blob_id currently homed on nodeID.
func (s *Store) ListByNode(nodeID string) ([]types.BlobID, error) {
	var ids []types.BlobID
	prefix := []byte(nodeID + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNodeBlobs).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, types.BlobID(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "listing blobs by node", err)
	}
	return ids, nil
}

// AllBlobs iterates every (blob_id, BlobMeta) pair, used by the
// startup consistency pass and by the ancestor cache.
func (s *Store) AllBlobs(fn func(types.BlobID, *types.BlobMeta) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, v []byte) error {
			var meta types.BlobMeta
			if err := decode(v, &meta); err != nil {
				return err
			}
			return fn(types.BlobID(k), &meta)
		})
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "scanning blobs", err)
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

func sizeBytes(size uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(size >> (8 * (7 - i)))
	}
	return b
}

var errNotFound = fmt.Errorf("not found")
