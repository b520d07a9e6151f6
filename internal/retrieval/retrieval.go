// Package retrieval provides the two retrieval backends behind one
// capability interface: semantic product search over a pgvector index and
// structured outlet lookup via constrained, parameterized queries.
//
// Both backends prefer availability over completeness: a timeout or an
// unavailable collaborator degrades to an empty candidate set instead of
// failing the turn. Fetch applies the uniform timeout and converts backend
// errors into the degraded signal the orchestrator acts on.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kopihq/kopi/internal/log"
)

// Source identifies which backend produced a candidate.
type Source string

const (
	// SourceVector marks candidates from semantic product search.
	SourceVector Source = "vector"

	// SourceStructured marks candidates from outlet lookup. Structured rows
	// are exact matches and outrank vector hits at equal score.
	SourceStructured Source = "structured"
)

// ExactMatchScore is the relevance assigned to structured rows.
const ExactMatchScore = 1.0

// Candidate is one retrieved piece of context. Candidates are transient:
// produced per query, consumed by the assembler, never persisted.
type Candidate struct {
	Source     Source  `json:"source"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`                // higher is more relevant, vector scores in [0,1]
	Provenance string  `json:"provenance,omitempty"` // stable ID of the underlying row or document
}

// Backend is the capability interface both providers implement.
// Implementations return an error only when the underlying collaborator
// failed; "nothing matched" is a nil error with zero candidates.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, topK int) ([]Candidate, error)
}

// ErrUnavailable indicates the backend's collaborator was unreachable or
// timed out. Fetch maps it (and any other backend error) to a degraded
// empty response.
var ErrUnavailable = errors.New("retrieval backend unavailable")

// Response is the outcome of a single backend fetch.
type Response struct {
	Candidates []Candidate
	Degraded   bool // true when the backend failed and returned nothing
}

// Fetch runs one backend under the uniform timeout and degrades to an empty
// response on failure. The error is logged, never propagated; the turn
// continues with whatever the remaining backends produced.
func Fetch(ctx context.Context, b Backend, query string, topK int, timeout time.Duration, logger log.Logger) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidates, err := b.Search(ctx, query, topK)
	if err != nil {
		logger.Warn("retrieval backend degraded",
			"backend", b.Name(),
			"error", err,
		)
		return Response{Degraded: true}
	}
	return Response{Candidates: candidates}
}

// normalizeContent collapses whitespace and lowercases content for
// dedup comparisons in the assembler.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizedContent returns the candidate's content in canonical form for
// duplicate detection.
func (c Candidate) NormalizedContent() string {
	return normalizeContent(c.Content)
}
