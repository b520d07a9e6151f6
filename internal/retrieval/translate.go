package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/kopihq/kopi/internal/log"
)

// translatePrompt asks for the constrained JSON shape only. The model never
// writes SQL; it fills whitelisted filter fields that we bind as parameters.
const translatePrompt = `Map the user's question about coffee outlets to a JSON filter.
Allowed keys (all optional): "name", "address", "service", "place_type", "open_after", "limit".
- "address" holds a place fragment, e.g. "Selangor" or "Kuala Lumpur".
- "open_after" holds a 12-hour closing-time floor like "9pm".
- "limit" is an integer only when the user asks for a specific count.
Reply with the JSON object only, no markdown. If the question is not about
outlets or no filter applies, reply with {}.

Question: %s`

// LLMTranslator maps natural language to OutletQuery using a short, bounded
// model call. This call is distinct from answer generation: different
// prompt, small response, and it never counts as the turn's generation call.
type LLMTranslator struct {
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewLLMTranslator creates a translator bound to the configured model.
func NewLLMTranslator(g *genkit.Genkit, modelName string, logger log.Logger) *LLMTranslator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LLMTranslator{g: g, modelName: modelName, logger: logger}
}

// Translate implements Translator.
func (t *LLMTranslator) Translate(ctx context.Context, query string, limit int) (OutletQuery, error) {
	resp, err := genkit.Generate(ctx, t.g,
		ai.WithModelName(t.modelName),
		ai.WithPrompt(translatePrompt, query),
	)
	if err != nil {
		return OutletQuery{}, fmt.Errorf("outlet translation: %w", err)
	}

	q, err := parseOutletQuery(resp.Text())
	if err != nil {
		t.logger.Debug("model produced unparseable outlet filter", "error", err)
		return OutletQuery{}, nil
	}
	if q.Limit <= 0 || q.Limit > limit {
		q.Limit = limit
	}
	return q, nil
}

// parseOutletQuery decodes the model reply, tolerating markdown fences.
func parseOutletQuery(text string) (OutletQuery, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return OutletQuery{}, nil
	}

	var q OutletQuery
	if err := json.Unmarshal([]byte(text), &q); err != nil {
		return OutletQuery{}, fmt.Errorf("decoding outlet filter %q: %w", text, err)
	}
	return q, nil
}
