package retrieval

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/kopihq/kopi/internal/log"
)

// Index is the consumer-defined interface over the approximate-nearest-
// neighbor product index. The production implementation is ProductIndex
// (PostgreSQL + pgvector); tests use an in-memory fake.
type Index interface {
	// Query returns the topK nearest matches for the embedding, ordered by
	// descending similarity.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
}

// Match is one row returned by the index.
type Match struct {
	ID         string
	Content    string
	Similarity float64 // cosine-derived, in [0,1]
}

// VectorBackend performs semantic product search: embed the query, then
// run nearest-neighbor search against the index.
type VectorBackend struct {
	embedder ai.Embedder
	index    Index
	logger   log.Logger
}

// NewVectorBackend creates the semantic search backend.
func NewVectorBackend(embedder ai.Embedder, index Index, logger log.Logger) *VectorBackend {
	if logger == nil {
		logger = log.NewNop()
	}
	return &VectorBackend{embedder: embedder, index: index, logger: logger}
}

// Name implements Backend.
func (v *VectorBackend) Name() string { return string(SourceVector) }

// Search embeds the query and returns the nearest product candidates.
// Scores carry the index's cosine-derived similarity, clamped to [0,1].
func (v *VectorBackend) Search(ctx context.Context, query string, topK int) ([]Candidate, error) {
	resp, err := v.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(query)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned for query", ErrUnavailable)
	}

	matches, err := v.index.Query(ctx, resp.Embeddings[0].Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: index query: %w", ErrUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		score := m.Similarity
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, Candidate{
			Source:     SourceVector,
			Content:    m.Content,
			Score:      score,
			Provenance: m.ID,
		})
	}

	v.logger.Debug("vector search completed", "query_len", len(query), "hits", len(candidates))
	return candidates, nil
}
