package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/kopihq/kopi/internal/log"
)

// OutletQuery is the constrained query shape structured search executes.
// Every field maps to a whitelisted column and is bound as a parameter;
// free-form SQL never reaches the database.
type OutletQuery struct {
	Name      string `json:"name,omitempty"`       // outlet name fragment
	Address   string `json:"address,omitempty"`    // address/region fragment, e.g. "Selangor"
	Service   string `json:"service,omitempty"`    // offered service fragment, e.g. "delivery"
	PlaceType string `json:"place_type,omitempty"` // e.g. "cafe", "kiosk"
	OpenAfter string `json:"open_after,omitempty"` // closing-time floor, e.g. "9pm"
	Limit     int    `json:"limit,omitempty"`
}

// IsZero reports whether no filter was extracted. A zero query means the
// phrase could not be mapped to a valid query shape.
func (q OutletQuery) IsZero() bool {
	return q.Name == "" && q.Address == "" && q.Service == "" &&
		q.PlaceType == "" && q.OpenAfter == ""
}

// Outlet is one row from the outlet store.
type Outlet struct {
	ID          int64
	Name        string
	Address     string
	PhoneNumber string
	Services    string
	PlaceType   string
	OpensAt     string
	Rating      float64
}

// Describe renders the outlet as retrieval content for the generation prompt.
func (o Outlet) Describe() string {
	parts := []string{o.Name, o.Address}
	if o.PhoneNumber != "" {
		parts = append(parts, "phone "+o.PhoneNumber)
	}
	if o.OpensAt != "" {
		parts = append(parts, "hours "+o.OpensAt)
	}
	if o.Services != "" {
		parts = append(parts, "services "+o.Services)
	}
	return strings.Join(parts, "; ")
}

// Translator maps a natural-language phrase to an OutletQuery.
// An unmappable phrase yields a zero OutletQuery, not an error.
type Translator interface {
	Translate(ctx context.Context, query string, limit int) (OutletQuery, error)
}

// Executor runs a constrained query against the relational store.
type Executor interface {
	Execute(ctx context.Context, q OutletQuery) ([]Outlet, error)
}

// StructuredBackend answers outlet/location questions: translate the phrase
// into an OutletQuery, execute it parameterized, return exact-match rows.
type StructuredBackend struct {
	translator Translator
	executor   Executor
	logger     log.Logger
}

// NewStructuredBackend creates the outlet lookup backend.
func NewStructuredBackend(translator Translator, executor Executor, logger log.Logger) *StructuredBackend {
	if logger == nil {
		logger = log.NewNop()
	}
	return &StructuredBackend{translator: translator, executor: executor, logger: logger}
}

// Name implements Backend.
func (s *StructuredBackend) Name() string { return string(SourceStructured) }

// Search implements Backend. Rows are exact matches and score 1.0.
// Translation failure degrades to zero candidates with a nil error so the
// orchestrator can fall through to general chat.
func (s *StructuredBackend) Search(ctx context.Context, query string, topK int) ([]Candidate, error) {
	q, err := s.translator.Translate(ctx, query, topK)
	if err != nil {
		s.logger.Debug("outlet query translation failed", "error", err)
		return nil, nil
	}
	if q.IsZero() {
		s.logger.Debug("phrase did not map to an outlet query", "query_len", len(query))
		return nil, nil
	}
	if q.Limit <= 0 || q.Limit > topK {
		q.Limit = topK
	}

	outlets, err := s.executor.Execute(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: outlet query: %w", ErrUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(outlets))
	for _, o := range outlets {
		candidates = append(candidates, Candidate{
			Source:     SourceStructured,
			Content:    o.Describe(),
			Score:      ExactMatchScore,
			Provenance: fmt.Sprintf("outlet:%d", o.ID),
		})
	}

	s.logger.Debug("structured search completed", "rows", len(candidates))
	return candidates, nil
}
