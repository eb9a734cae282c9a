package bitmap

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/menmos/menmos/pkg/query"
)

// Eval evaluates expr against the index's current snapshot and
// returns the resulting bitmap. Eval never blocks and never takes
// the writer lock: it reads one atomically-loaded snapshot pointer
// and is safe to call concurrently with Index/Unindex/Reindex.
func (idx *Index) Eval(expr *query.Expr) *roaring.Bitmap {
	s := idx.snap.Load()
	return evalNode(s, expr)
}

// Universe returns a clone of the bitmap of every currently-allocated
// row. `not` is always computed against this, never against a raw
// bit-length, so freed rows never reappear (spec §4.3).
func (idx *Index) Universe() *roaring.Bitmap {
	return idx.snap.Load().universe.Clone()
}

func evalNode(s *snapshot, e *query.Expr) *roaring.Bitmap {
	if e == nil {
		return s.universe.Clone()
	}
	switch e.Kind {
	case query.KindEmpty:
		return s.universe.Clone()
	case query.KindTag:
		return lookup(s.tag, e.Key)
	case query.KindKV:
		if e.IsInt {
			return numericExact(s, e.Key, e.IntValue)
		}
		return lookup(s.kv, kvTerm(e.Key, e.StrValue))
	case query.KindHasKey:
		return hasKey(s, e.Key)
	case query.KindNumericRange:
		return numericRange(s, e.Key, e.Lo, e.Hi)
	case query.KindParent:
		return lookup(s.parent, e.BlobID)
	case query.KindAncestor:
		return lookup(s.ancestors, e.BlobID)
	case query.KindOwner:
		return lookup(s.owner, e.Owner)
	case query.KindAnd:
		return roaring.And(evalNode(s, e.Left), evalNode(s, e.Right))
	case query.KindOr:
		return roaring.Or(evalNode(s, e.Left), evalNode(s, e.Right))
	case query.KindNot:
		return roaring.AndNot(s.universe, evalNode(s, e.Left))
	default:
		return roaring.New()
	}
}

func lookup(m map[string]*roaring.Bitmap, term string) *roaring.Bitmap {
	if bm, ok := m[term]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

func hasKey(s *snapshot, key string) *roaring.Bitmap {
	out := roaring.New()
	prefix := key + "="
	for term, bm := range s.kv {
		if len(term) > len(prefix) && term[:len(prefix)] == prefix {
			out.Or(bm)
		}
	}
	for _, entry := range s.numeric[key] {
		out.Or(entry.bm)
	}
	return out
}

func numericExact(s *snapshot, key string, value int64) *roaring.Bitmap {
	entries := s.numeric[key]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].value >= value })
	if i < len(entries) && entries[i].value == value {
		return entries[i].bm.Clone()
	}
	return roaring.New()
}

func numericRange(s *snapshot, key string, lo, hi *int64) *roaring.Bitmap {
	entries := s.numeric[key]
	out := roaring.New()
	if lo != nil && hi != nil && *lo > *hi {
		return out
	}
	start := 0
	if lo != nil {
		start = sort.Search(len(entries), func(i int) bool { return entries[i].value >= *lo })
	}
	for i := start; i < len(entries); i++ {
		if hi != nil && entries[i].value > *hi {
			break
		}
		out.Or(entries[i].bm)
	}
	return out
}
