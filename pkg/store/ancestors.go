package store

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/menmos/menmos/pkg/bitmap"
	"github.com/menmos/menmos/pkg/menmoserr"
	"github.com/menmos/menmos/pkg/types"
)

// Ancestors returns the full set of ancestor blob ids reached by
// walking parent_id pointers from id up to a root, consulting and
// populating the per-blob ancestor cache (spec §9).
func (s *Store) Ancestors(id types.BlobID) (map[types.BlobID]struct{}, error) {
	s.ancMu.RLock()
	if cached, ok := s.ancestorCache[id]; ok {
		out := make(map[types.BlobID]struct{}, len(cached))
		for k := range cached {
			out[k] = struct{}{}
		}
		s.ancMu.RUnlock()
		return out, nil
	}
	s.ancMu.RUnlock()

	set := make(map[types.BlobID]struct{})
	cur := id
	for {
		meta, err := s.GetMeta(cur)
		if err != nil {
			return nil, err
		}
		if meta.ParentID == nil {
			break
		}
		parent := *meta.ParentID
		if _, seen := set[parent]; seen {
			break
		}
		set[parent] = struct{}{}
		cur = parent
	}

	cached := make(map[types.BlobID]struct{}, len(set))
	for k := range set {
		cached[k] = struct{}{}
	}
	s.ancMu.Lock()
	s.ancestorCache[id] = cached
	s.ancMu.Unlock()

	return set, nil
}

// WouldCycle reports whether pointing child's parent at candidateParent
// would introduce a cycle in the parent DAG: true when candidateParent
// is child itself, or child already appears among candidateParent's
// ancestors (spec §9's cycle-prevention rule).
func (s *Store) WouldCycle(child, candidateParent types.BlobID) (bool, error) {
	if child == candidateParent {
		return true, nil
	}
	ancestors, err := s.Ancestors(candidateParent)
	if err != nil {
		if menmoserr.KindOf(err) == menmoserr.NotFound {
			return false, nil
		}
		return false, err
	}
	_, found := ancestors[child]
	return found, nil
}

// RefreshAncestors recomputes the bitmap ancestors facet (spec §4.3)
// for every blob id that currently has at least one descendant and
// republishes it through idx.SetAncestors, clearing any previously
// published id whose descendant set has gone empty. It walks the full
// parent_id graph from durable state rather than patching the facet
// incrementally, applying the same coarse, recompute-the-whole-thing
// approach this package already uses for the ancestor-chain cache
// above. Callers re-run it after any create, update, or delete that
// touches a parent pointer, and once more during Recover.
func (s *Store) RefreshAncestors(idx *bitmap.Index) error {
	parentOf := make(map[types.BlobID]types.BlobID)
	rowOf := make(map[types.BlobID]types.Row)

	if err := s.AllBlobs(func(id types.BlobID, meta *types.BlobMeta) error {
		if meta.ParentID != nil {
			parentOf[id] = *meta.ParentID
		}
		row, found, err := s.RowOf(id)
		if err != nil {
			return err
		}
		if found {
			rowOf[id] = row
		}
		return nil
	}); err != nil {
		return err
	}

	descendants := make(map[types.BlobID]*roaring.Bitmap)
	for id, row := range rowOf {
		seen := make(map[types.BlobID]struct{})
		cur := id
		for {
			parent, ok := parentOf[cur]
			if !ok {
				break
			}
			if _, loop := seen[parent]; loop {
				break
			}
			seen[parent] = struct{}{}
			bm, ok := descendants[parent]
			if !ok {
				bm = roaring.New()
				descendants[parent] = bm
			}
			bm.Add(uint32(row))
			cur = parent
		}
	}

	for _, id := range idx.AncestorIDs() {
		if _, ok := descendants[types.BlobID(id)]; !ok {
			idx.SetAncestors(id, nil)
		}
	}
	for id, bm := range descendants {
		idx.SetAncestors(string(id), bm)
	}
	return nil
}

// invalidateAncestorCache drops every cached ancestor set. A single
// parent-pointer write can change the ancestor chain of an arbitrary
// number of descendants, and the cache keeps no reverse index to find
// them individually, so the safe invalidation is global rather than
// per-id.
func (s *Store) invalidateAncestorCache(types.BlobID) {
	s.ancMu.Lock()
	s.ancestorCache = make(map[types.BlobID]map[types.BlobID]struct{})
	s.ancMu.Unlock()
}
