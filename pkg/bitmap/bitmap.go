// Package bitmap implements the coordinator's in-memory inverted
// index (spec component C3): one roaring bitmap per facet term,
// mutated behind a single writer lock and published to readers as an
// immutable, atomically-swapped snapshot.
package bitmap

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/menmos/menmos/pkg/query"
	"github.com/menmos/menmos/pkg/types"
)

// numericEntry is one exact value bucket within a numeric field's
// sorted value index.
type numericEntry struct {
	value int64
	bm    *roaring.Bitmap
}

// snapshot is one immutable view of every facet. Readers load it
// atomically and never observe a partially-updated facet map.
type snapshot struct {
	tag       map[string]*roaring.Bitmap
	kv        map[string]*roaring.Bitmap
	parent    map[string]*roaring.Bitmap
	ancestors map[string]*roaring.Bitmap
	owner     map[string]*roaring.Bitmap
	numeric   map[string][]numericEntry
	universe  *roaring.Bitmap
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tag:       make(map[string]*roaring.Bitmap),
		kv:        make(map[string]*roaring.Bitmap),
		parent:    make(map[string]*roaring.Bitmap),
		ancestors: make(map[string]*roaring.Bitmap),
		owner:     make(map[string]*roaring.Bitmap),
		numeric:   make(map[string][]numericEntry),
		universe:  roaring.New(),
	}
}

// shallowClone copies the top-level maps (by reference to their
// bitmap values) so a writer can mutate touched terms in place on the
// clone without disturbing bitmaps still referenced by the published
// snapshot readers are iterating.
func (s *snapshot) shallowClone() *snapshot {
	c := &snapshot{
		tag:       make(map[string]*roaring.Bitmap, len(s.tag)),
		kv:        make(map[string]*roaring.Bitmap, len(s.kv)),
		parent:    make(map[string]*roaring.Bitmap, len(s.parent)),
		ancestors: make(map[string]*roaring.Bitmap, len(s.ancestors)),
		owner:     make(map[string]*roaring.Bitmap, len(s.owner)),
		numeric:   make(map[string][]numericEntry, len(s.numeric)),
		universe:  s.universe.Clone(),
	}
	for k, v := range s.tag {
		c.tag[k] = v
	}
	for k, v := range s.kv {
		c.kv[k] = v
	}
	for k, v := range s.parent {
		c.parent[k] = v
	}
	for k, v := range s.ancestors {
		c.ancestors[k] = v
	}
	for k, v := range s.owner {
		c.owner[k] = v
	}
	for k, v := range s.numeric {
		cp := make([]numericEntry, len(v))
		copy(cp, v)
		c.numeric[k] = cp
	}
	return c
}

// Index is the coordinator's bitmap facet index. Zero value is not
// usable; use New.
type Index struct {
	mu   sync.Mutex // single writer lock (spec §4.3)
	snap atomic.Pointer[snapshot]
}

// New creates an empty bitmap index.
func New() *Index {
	idx := &Index{}
	idx.snap.Store(emptySnapshot())
	return idx
}

func kvTerm(key, val string) string { return key + "=" + val }

// Index adds row's bits for every facet derivable from meta. It takes
// the index's writer mutex itself, so concurrent callers are
// serialized.
func (idx *Index) Index(row types.Row, meta *types.BlobMeta) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	draft := idx.snap.Load().shallowClone()
	applyIndex(draft, row, meta)
	idx.snap.Store(draft)
}

// Unindex clears row's bits for every facet derivable from meta.
func (idx *Index) Unindex(row types.Row, meta *types.BlobMeta) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	draft := idx.snap.Load().shallowClone()
	applyUnindex(draft, row, meta)
	idx.snap.Store(draft)
}

// Reindex atomically replaces row's facet bits derived from old with
// those derived from updated, without ever publishing an
// intermediate state that matches neither.
func (idx *Index) Reindex(row types.Row, old, updated *types.BlobMeta) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	draft := idx.snap.Load().shallowClone()
	applyUnindex(draft, row, old)
	applyIndex(draft, row, updated)
	idx.snap.Store(draft)
}

func applyIndex(s *snapshot, row types.Row, meta *types.BlobMeta) {
	r := uint32(row)
	s.universe.Add(r)

	for _, t := range meta.Tags {
		addBit(s.tag, t, r)
	}
	for k, v := range meta.Fields {
		if v.IsInt {
			addNumeric(s, k, v.Int, r)
		} else {
			addBit(s.kv, kvTerm(k, v.Str), r)
		}
	}
	if meta.ParentID != nil {
		addBit(s.parent, string(*meta.ParentID), r)
	}
	addBit(s.owner, meta.Owner, r)
}

func applyUnindex(s *snapshot, row types.Row, meta *types.BlobMeta) {
	r := uint32(row)
	s.universe.Remove(r)

	for _, t := range meta.Tags {
		removeBit(s.tag, t, r)
	}
	for k, v := range meta.Fields {
		if v.IsInt {
			removeNumeric(s, k, v.Int, r)
		} else {
			removeBit(s.kv, kvTerm(k, v.Str), r)
		}
	}
	if meta.ParentID != nil {
		removeBit(s.parent, string(*meta.ParentID), r)
	}
	removeBit(s.owner, meta.Owner, r)
}

func addBit(m map[string]*roaring.Bitmap, term string, row uint32) {
	bm, ok := m[term]
	if !ok {
		bm = roaring.New()
	} else {
		bm = bm.Clone()
	}
	bm.Add(row)
	m[term] = bm
}

func removeBit(m map[string]*roaring.Bitmap, term string, row uint32) {
	bm, ok := m[term]
	if !ok {
		return
	}
	bm = bm.Clone()
	bm.Remove(row)
	if bm.IsEmpty() {
		delete(m, term)
	} else {
		m[term] = bm
	}
}

func addNumeric(s *snapshot, key string, value int64, row uint32) {
	entries := s.numeric[key]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].value >= value })
	if i < len(entries) && entries[i].value == value {
		bm := entries[i].bm.Clone()
		bm.Add(row)
		entries[i].bm = bm
	} else {
		bm := roaring.New()
		bm.Add(row)
		entries = append(entries, numericEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = numericEntry{value: value, bm: bm}
	}
	s.numeric[key] = entries
}

func removeNumeric(s *snapshot, key string, value int64, row uint32) {
	entries := s.numeric[key]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].value >= value })
	if i >= len(entries) || entries[i].value != value {
		return
	}
	bm := entries[i].bm.Clone()
	bm.Remove(row)
	if bm.IsEmpty() {
		entries = append(entries[:i], entries[i+1:]...)
	} else {
		entries[i].bm = bm
	}
	s.numeric[key] = entries
}

// AncestorIDs returns the blob ids currently published in the
// ancestors facet, letting a full recompute (pkg/store.RefreshAncestors)
// find and clear entries that no longer have any descendant.
func (idx *Index) AncestorIDs() []string {
	snap := idx.snap.Load()
	ids := make([]string, 0, len(snap.ancestors))
	for id := range snap.ancestors {
		ids = append(ids, id)
	}
	return ids
}

// SetAncestors replaces the full ancestors-facet bit vector for a
// given ancestor blob id with exactly the supplied bitmap of
// descendant rows — invariant 4 requires this facet to equal the
// transitive closure of parent_id exactly, so the store recomputes
// and re-publishes it whenever a parent pointer changes anywhere in
// the chain, rather than incrementally patching it.
func (idx *Index) SetAncestors(ancestorID string, rows *roaring.Bitmap) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	draft := idx.snap.Load().shallowClone()
	if rows == nil || rows.IsEmpty() {
		delete(draft.ancestors, ancestorID)
	} else {
		draft.ancestors[ancestorID] = rows.Clone()
	}
	idx.snap.Store(draft)
}
