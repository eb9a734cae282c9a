// Package queryeval implements the coordinator's query evaluator
// (spec component C4): it parses nothing itself (pkg/query owns the
// grammar) but orchestrates C3's bitmap evaluation with C2's metadata
// hydration, enforces the pagination contract, and optionally mints
// read grants for each hit via C1.
package queryeval

import (
	"github.com/menmos/menmos/pkg/bitmap"
	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/query"
	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/store"
	"github.com/menmos/menmos/pkg/types"
)

// Hit is one query result: the blob's metadata, its home node, and —
// when sign_urls was requested — a redirect URL and grant the client
// can use to fetch the payload directly from the storage node.
type Hit struct {
	Meta        *types.BlobMeta
	NodeID      string
	Unreachable bool
	RedirectURL string
	ReadGrant   string
}

// Facet is one requested facet's top terms by intersection size.
type Facet struct {
	Name  string
	Terms []bitmap.TermCount
}

// Result is the reply to a Query call.
type Result struct {
	TotalCount int
	Hits       []Hit
	Facets     []Facet
}

// Request carries one query call's parameters (spec §4.4).
type Request struct {
	Expr            *query.Expr
	From            int
	Size            int
	FacetsRequested []string
	FacetTopK       int
	SignURLs        bool
}

// Evaluator is the coordinator's C4 implementation.
type Evaluator struct {
	idx  *bitmap.Index
	st   *store.Store
	rtr  *router.Router
	cred *credential.Service
}

// New builds an Evaluator. cred may be nil if sign_urls is never used
// (e.g. in tests exercising pagination alone).
func New(idx *bitmap.Index, st *store.Store, rtr *router.Router, cred *credential.Service) *Evaluator {
	return &Evaluator{idx: idx, st: st, rtr: rtr, cred: cred}
}

// Query runs the five-step algorithm of spec §4.4 against req.Expr
// (or the match-all expression if nil) and returns a paginated,
// hydrated result.
func (e *Evaluator) Query(req Request) (*Result, error) {
	expr := req.Expr
	if expr == nil {
		expr = query.Empty
	}

	result := e.idx.Eval(expr)
	total := int(result.GetCardinality())

	res := &Result{TotalCount: total}

	from := req.From
	size := req.Size
	if from < 0 {
		from = 0
	}

	if size > 0 && from < total {
		it := result.Iterator()
		skipped := 0
		for it.HasNext() && skipped < from {
			it.Next()
			skipped++
		}
		for it.HasNext() && len(res.Hits) < size {
			row := it.Next()
			hit, err := e.hydrate(types.Row(row), req.SignURLs)
			if err != nil {
				return nil, err
			}
			if hit != nil {
				res.Hits = append(res.Hits, *hit)
			}
		}
	}

	for _, name := range req.FacetsRequested {
		terms := e.idx.FacetCounts(name, result, req.FacetTopK)
		res.Facets = append(res.Facets, Facet{Name: name, Terms: terms})
	}

	return res, nil
}

func (e *Evaluator) hydrate(row types.Row, signURLs bool) (*Hit, error) {
	id, found, err := e.st.BlobOfRow(row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	meta, err := e.st.GetMeta(id)
	if err != nil {
		return nil, nil
	}

	nodeID, err := e.st.HomeNode(id)
	if err != nil {
		return nil, err
	}

	hit := &Hit{Meta: meta, NodeID: nodeID}
	if nodeID != "" && e.rtr != nil {
		hit.Unreachable = !e.rtr.IsLive(nodeID)
	}

	if signURLs && nodeID != "" && e.cred != nil {
		grant, err := e.cred.IssueGrant(id, credential.GrantRead, 0)
		if err != nil {
			return nil, err
		}
		hit.ReadGrant = grant

		if node, err := e.st.GetNode(nodeID); err == nil {
			addr := node.PublicIP
			if addr == "" {
				addr = node.Address
			}
			hit.RedirectURL = addr
		}
	}

	return hit, nil
}
