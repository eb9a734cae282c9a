package coordinator

import (
	"net/http"

	"github.com/menmos/menmos/pkg/query"
	"github.com/menmos/menmos/pkg/queryeval"
)

type queryRequest struct {
	Expr            string   `json:"expr"`
	From            int      `json:"from"`
	Size            int      `json:"size"`
	FacetsRequested []string `json:"facets_requested,omitempty"`
	SignURLs        bool     `json:"sign_urls,omitempty"`
}

type hitDTO struct {
	ID          string      `json:"id"`
	Meta        blobMetaDTO `json:"meta"`
	NodeID      string      `json:"node_id"`
	Unreachable bool        `json:"unreachable,omitempty"`
	RedirectURL string      `json:"redirect_url,omitempty"`
	ReadGrant   string      `json:"read_grant,omitempty"`
}

type facetDTO struct {
	Name  string        `json:"name"`
	Terms []termCountDTO `json:"terms"`
}

type termCountDTO struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type queryResponse struct {
	TotalCount int        `json:"total_count"`
	Hits       []hitDTO   `json:"hits"`
	Facets     []facetDTO `json:"facets,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	expr, err := query.Parse(req.Expr)
	if err != nil {
		writeError(w, badQueryErr(err))
		return
	}

	topK := s.cfg.FacetCountTopK
	result, err := s.qe.Query(queryeval.Request{
		Expr:            expr,
		From:            req.From,
		Size:            req.Size,
		FacetsRequested: req.FacetsRequested,
		FacetTopK:       topK,
		SignURLs:        req.SignURLs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := queryResponse{TotalCount: result.TotalCount, Hits: make([]hitDTO, 0, len(result.Hits))}
	for _, h := range result.Hits {
		resp.Hits = append(resp.Hits, hitDTO{
			ID:          string(h.Meta.ID),
			Meta:        metaToDTO(h.Meta),
			NodeID:      h.NodeID,
			Unreachable: h.Unreachable,
			RedirectURL: h.RedirectURL,
			ReadGrant:   h.ReadGrant,
		})
	}
	for _, f := range result.Facets {
		fd := facetDTO{Name: f.Name}
		for _, t := range f.Terms {
			fd.Terms = append(fd.Terms, termCountDTO{Term: t.Term, Count: t.Count})
		}
		resp.Facets = append(resp.Facets, fd)
	}

	writeJSON(w, http.StatusOK, resp)
}
