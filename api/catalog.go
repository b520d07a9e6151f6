package api

import (
	"net/http"
	"strconv"

	"github.com/kopihq/kopi/internal/log"
	"github.com/kopihq/kopi/internal/retrieval"
)

const (
	catalogTopKDefault = 3
	catalogTopKMax     = 10
)

// CatalogHandler exposes the retrieval backends directly, without the
// conversational pipeline, for clients that want raw matches.
type CatalogHandler struct {
	vector     retrieval.Backend
	structured retrieval.Backend
	logger     log.Logger
}

// NewCatalogHandler creates a catalog handler over both backends.
func NewCatalogHandler(vector, structured retrieval.Backend, logger log.Logger) *CatalogHandler {
	return &CatalogHandler{vector: vector, structured: structured, logger: logger}
}

// RegisterRoutes registers catalog routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.handleSearch(h.vector))
	mux.HandleFunc("GET /api/v1/outlets", h.handleSearch(h.structured))
}

// CatalogResponse is the result of one retrieval query.
type CatalogResponse struct {
	Query    string                `json:"query"`
	Results  []retrieval.Candidate `json:"results"`
	Degraded bool                  `json:"degraded"`
}

func (h *CatalogHandler) handleSearch(backend retrieval.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if query == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "query parameter is required")
			return
		}

		topK := catalogTopKDefault
		if raw := r.URL.Query().Get("top_k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_request", "top_k must be a positive integer")
				return
			}
			topK = min(n, catalogTopKMax)
		}

		resp := retrieval.Fetch(r.Context(), backend, query, topK, ReadTimeout/2, h.logger)
		results := resp.Candidates
		if results == nil {
			results = []retrieval.Candidate{}
		}
		writeJSON(w, http.StatusOK, CatalogResponse{
			Query:    query,
			Results:  results,
			Degraded: resp.Degraded,
		})
	}
}
