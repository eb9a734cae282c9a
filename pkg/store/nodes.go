package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// nodeRecordDTO is the durable shape of a NodeRecord: Blobs/SizeByBlob
// are reconstructed from bucketNodeBlobs at load time rather than
// duplicated here, so a node's blob set has exactly one durable source
// of truth (spec invariant 3).
type nodeRecordDTO struct {
	ID             string
	Address        string
	PublicIP       string
	AvailableBytes uint64
	LastSeen       time.Time
}

// PutNode durably records a storage node's registration. Called at
// join time; heartbeats update the stored record through TouchNode.
func (s *Store) PutNode(n *types.NodeRecord) error {
	dto := nodeRecordDTO{
		ID:             n.ID,
		Address:        n.Address,
		PublicIP:       n.PublicIP,
		AvailableBytes: n.AvailableBytes,
		LastSeen:       n.LastSeen,
	}
	data, err := encode(&dto)
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "encoding node", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Put([]byte(n.ID), data)
	})
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "writing node", err)
	}
	return nil
}

// TouchNode records a heartbeat's observed time and remaining
// capacity without requiring the caller to read-modify-write the full
// record.
func (s *Store) TouchNode(nodeID string, availableBytes uint64, seenAt time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(nodeID))
		if data == nil {
			return errNotFound
		}
		var dto nodeRecordDTO
		if err := decode(data, &dto); err != nil {
			return err
		}
		dto.AvailableBytes = availableBytes
		dto.LastSeen = seenAt
		out, err := encode(&dto)
		if err != nil {
			return err
		}
		return b.Put([]byte(nodeID), out)
	})
	if err == errNotFound {
		return menmoserr.New(menmoserr.NotFound, fmt.Sprintf("node %s not found", nodeID))
	}
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "touching node", err)
	}
	return nil
}

// GetNode returns nodeID's record hydrated with its current blob set,
// or a NotFound error.
func (s *Store) GetNode(nodeID string) (*types.NodeRecord, error) {
	var dto nodeRecordDTO
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(nodeID))
		if data == nil {
			return errNotFound
		}
		return decode(data, &dto)
	})
	if err == errNotFound {
		return nil, menmoserr.New(menmoserr.NotFound, fmt.Sprintf("node %s not found", nodeID))
	}
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "reading node", err)
	}
	return s.hydrateNode(&dto)
}

// DeleteNode removes nodeID's registration. The caller is responsible
// for migrating its blobs beforehand (spec §4.6); DeleteNode refuses
// when blobs remain assigned to it.
func (s *Store) DeleteNode(nodeID string) error {
	blobs, err := s.ListByNode(nodeID)
	if err != nil {
		return err
	}
	if len(blobs) > 0 {
		return menmoserr.New(menmoserr.Conflict, fmt.Sprintf("node %s still hosts %d blobs", nodeID, len(blobs)))
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketNodes).Get([]byte(nodeID)) == nil {
			return errNotFound
		}
		return tx.Bucket(bucketNodes).Delete([]byte(nodeID))
	})
	if err == errNotFound {
		return menmoserr.New(menmoserr.NotFound, fmt.Sprintf("node %s not found", nodeID))
	}
	if err != nil {
		return menmoserr.Wrap(menmoserr.StorageFailure, "deleting node", err)
	}
	return nil
}

// AllNodes returns every registered node, hydrated with its current
// blob set, used at startup to seed the router's in-memory view.
func (s *Store) AllNodes() ([]*types.NodeRecord, error) {
	var dtos []nodeRecordDTO
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var dto nodeRecordDTO
			if err := decode(v, &dto); err != nil {
				return err
			}
			dtos = append(dtos, dto)
			return nil
		})
	})
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "scanning nodes", err)
	}
	out := make([]*types.NodeRecord, 0, len(dtos))
	for i := range dtos {
		n, err := s.hydrateNode(&dtos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) hydrateNode(dto *nodeRecordDTO) (*types.NodeRecord, error) {
	n := &types.NodeRecord{
		ID:             dto.ID,
		Address:        dto.Address,
		PublicIP:       dto.PublicIP,
		AvailableBytes: dto.AvailableBytes,
		LastSeen:       dto.LastSeen,
		Blobs:          make(map[types.BlobID]struct{}),
		SizeByBlob:     make(map[types.BlobID]uint64),
	}
	prefix := []byte(dto.ID + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNodeBlobs).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			id := types.BlobID(k[len(prefix):])
			n.Blobs[id] = struct{}{}
			n.SizeByBlob[id] = decodeSizeBytes(v)
		}
		return nil
	})
	if err != nil {
		return nil, menmoserr.Wrap(menmoserr.StorageFailure, "hydrating node blobs", err)
	}
	return n, nil
}

func decodeSizeBytes(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
