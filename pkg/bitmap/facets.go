package bitmap

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// TermCount is one facet term's intersection size against a result
// bitmap, used by pkg/queryeval to answer facets_requested.
type TermCount struct {
	Term  string
	Count int
}

// FacetCounts computes popcount(r AND bitmap(term)) for every term in
// the named facet that intersects r, and returns the topK terms by
// count, ties broken lexicographically on the term (spec §4.4 step
// 6). topK <= 0 returns every intersecting term.
func (idx *Index) FacetCounts(facet string, r *roaring.Bitmap, topK int) []TermCount {
	s := idx.snap.Load()

	var m map[string]*roaring.Bitmap
	switch facet {
	case "tag":
		m = s.tag
	case "kv":
		m = s.kv
	case "parent":
		m = s.parent
	case "ancestors":
		m = s.ancestors
	case "owner":
		m = s.owner
	default:
		return nil
	}

	var counts []TermCount
	for term, bm := range m {
		c := roaring.AndCardinality(r, bm)
		if c > 0 {
			counts = append(counts, TermCount{Term: term, Count: int(c)})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Term < counts[j].Term
	})
	if topK > 0 && len(counts) > topK {
		counts = counts[:topK]
	}
	return counts
}
