// Package types defines the core data structures shared across the
// coordinator: blob metadata, storage-node records, users, and the
// row bookkeeping that ties a blob to its position in the bitmap index.
package types

import (
	"time"

	"github.com/google/uuid"
)

// BlobID is an opaque 128-bit identifier, client-supplied or
// server-generated, globally unique within a cluster.
type BlobID string

// NewBlobID generates a fresh, random blob identifier.
func NewBlobID() BlobID {
	return BlobID(uuid.New().String())
}

// BlobType distinguishes opaque payload blobs from directory blobs,
// which exist only to anchor a parent chain.
type BlobType string

const (
	BlobTypeFile      BlobType = "file"
	BlobTypeDirectory BlobType = "directory"
)

// BlobStatus tracks a blob's place in the create/commit/reap lifecycle
// driven by the coordinator API (see pkg/coordinator).
type BlobStatus string

const (
	// BlobPending is set the moment a blob is reserved in the metadata
	// store, before the storage node has confirmed the payload write.
	BlobPending BlobStatus = "pending"
	// BlobCommitted means the storage node acknowledged the write.
	BlobCommitted BlobStatus = "committed"
	// BlobOrphaned means the pending timeout elapsed with no
	// confirmation; the row is eligible for garbage collection.
	BlobOrphaned BlobStatus = "orphaned"
)

// FieldValue is either a string or a signed integer. Only one of the
// two fields is meaningful at a time; IsInt reports which.
type FieldValue struct {
	IsInt bool
	Str   string
	Int   int64
}

// StringField builds a string-valued field.
func StringField(s string) FieldValue { return FieldValue{Str: s} }

// IntField builds an integer-valued field.
func IntField(v int64) FieldValue { return FieldValue{IsInt: true, Int: v} }

// BlobMeta is the authoritative, durable record for one blob. It is
// the unit of truth that the bitmap index (pkg/bitmap) is derived
// from and must always agree with.
type BlobMeta struct {
	ID         BlobID
	Name       string
	Size       uint64
	BlobType   BlobType
	Owner      string
	ParentID   *BlobID
	Tags       []string
	Fields     map[string]FieldValue
	Status     BlobStatus
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// HasTag reports whether the blob carries the given tag.
func (m *BlobMeta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NodeRecord is the coordinator's view of one storage node: its
// address, advertised capacity, and the set of blobs it currently
// hosts. Liveness is derived from LastSeen by the router, not stored
// directly.
type NodeRecord struct {
	ID             string
	Address        string
	PublicIP       string
	AvailableBytes uint64
	LastSeen       time.Time
	Blobs          map[BlobID]struct{}
	SizeByBlob     map[BlobID]uint64
}

// Clone returns a deep copy suitable for publishing into a read-only
// snapshot without aliasing the router's mutable maps.
func (n *NodeRecord) Clone() *NodeRecord {
	c := *n
	c.Blobs = make(map[BlobID]struct{}, len(n.Blobs))
	for id := range n.Blobs {
		c.Blobs[id] = struct{}{}
	}
	c.SizeByBlob = make(map[BlobID]uint64, len(n.SizeByBlob))
	for id, sz := range n.SizeByBlob {
		c.SizeByBlob[id] = sz
	}
	return &c
}

// User holds an account's authentication record. PasswordHash is an
// argon2id hash produced by pkg/credential.
type User struct {
	Username     string
	PasswordHash string
	IsAdmin      bool
}

// Row is the dense integer position a blob occupies in the bitmap
// index, stable across restarts and reused after deletion.
type Row uint32
