package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Heuristic confidence levels. Keyword hits are strong signals; a model
// tie-break is weaker, and an unclassifiable message weaker still.
const (
	keywordConfidence  = 0.9
	modelConfidence    = 0.7
	fallbackConfidence = 0.3
	mixedConfidence    = 0.5
)

// productKeywords mark catalog questions (drinkware, pricing).
var productKeywords = []string{
	"product", "tumbler", "cup", "mug", "bottle", "flask",
	"drinkware", "merchandise", "price", "cost", "color", "colour", "buy",
}

// outletKeywords mark store and location questions.
var outletKeywords = []string{
	"outlet", "store", "branch", "location", "address",
	"open", "opening", "close", "closing", "near", "where",
}

const classifyPrompt = `Classify the user's intent into one of the following categories:
- product: questions about coffee shop products (drinkware, cups, tumblers, pricing)
- outlet: questions about coffee shop outlets (locations, stores, branches, opening hours)
- general: general conversation or other topics

%sUser input: %s

Respond with only one word: "product", "outlet", or "general"`

// Router classifies messages, using keyword heuristics first and a short
// model call only when the heuristics disagree or find nothing.
type Router struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// NewRouter builds a Router. The model call uses modelName with a prompt
// bounded to a one-word answer, kept separate from answer generation.
func NewRouter(g *genkit.Genkit, modelName string, logger *slog.Logger) *Router {
	return &Router{g: g, modelName: modelName, logger: logger}
}

// Classify returns the intent of message. history is the trailing user
// turns of the session, used only to give the tie-break prompt context.
// Classification never fails the turn: any model error yields Ambiguous.
func (r *Router) Classify(ctx context.Context, message string, history []string) Result {
	product := matchesAny(message, productKeywords)
	outlet := matchesAny(message, outletKeywords)

	switch {
	case product && !outlet:
		return Result{Intent: Product, Confidence: keywordConfidence}
	case outlet && !product:
		return Result{Intent: Outlet, Confidence: keywordConfidence}
	case product && outlet:
		return Result{Intent: Ambiguous, Confidence: mixedConfidence}
	}

	return r.classifyWithModel(ctx, message, history)
}

func (r *Router) classifyWithModel(ctx context.Context, message string, history []string) Result {
	var recent string
	if n := len(history); n > 0 {
		if n > 3 {
			history = history[n-3:]
		}
		recent = "Recent conversation:\n" + strings.Join(history, "\n") + "\n\n"
	}

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithPrompt(fmt.Sprintf(classifyPrompt, recent, message)),
	)
	if err != nil {
		r.logger.Warn("intent classification failed, routing to both backends", "error", err)
		return Result{Intent: Ambiguous, Confidence: fallbackConfidence}
	}

	switch strings.ToLower(strings.TrimSpace(resp.Text())) {
	case "product":
		return Result{Intent: Product, Confidence: modelConfidence}
	case "outlet":
		return Result{Intent: Outlet, Confidence: modelConfidence}
	case "general":
		return Result{Intent: General, Confidence: modelConfidence}
	default:
		r.logger.Warn("intent classification returned unexpected label",
			"label", resp.Text())
		return Result{Intent: Ambiguous, Confidence: fallbackConfidence}
	}
}

func matchesAny(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

// containsWord reports whether kw appears in s on word boundaries, so
// "cup" does not match "hiccup".
func containsWord(s, kw string) bool {
	for idx := 0; ; {
		i := strings.Index(s[idx:], kw)
		if i < 0 {
			return false
		}
		i += idx
		end := i + len(kw)
		startOK := i == 0 || !isWordByte(s[i-1])
		endOK := end == len(s) || !isWordByte(s[end])
		if startOK && endOK {
			return true
		}
		idx = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
