package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"

	"github.com/kopihq/kopi/internal/testutil"
)

func newTestRouter(t *testing.T, llm *testutil.MockLLM) *Router {
	t.Helper()
	g := genkit.Init(context.Background())
	llm.Register(g)
	return NewRouter(g, testutil.MockModelName, testutil.DiscardLogger())
}

func TestClassify_ProductKeywords(t *testing.T) {
	llm := testutil.NewMockLLM("general")
	r := newTestRouter(t, llm)

	for _, msg := range []string{
		"do you sell a blue tumbler?",
		"what is the price of the travel mug",
		"show me drinkware options",
	} {
		got := r.Classify(context.Background(), msg, nil)
		assert.Equal(t, Product, got.Intent, "message %q", msg)
		assert.Equal(t, keywordConfidence, got.Confidence)
	}

	// Heuristic hits must not reach the model.
	assert.Empty(t, llm.Calls())
}

func TestClassify_OutletKeywords(t *testing.T) {
	llm := testutil.NewMockLLM("general")
	r := newTestRouter(t, llm)

	for _, msg := range []string{
		"which outlet is near KLCC?",
		"when does the Bangsar branch close",
		"where is your nearest store",
	} {
		got := r.Classify(context.Background(), msg, nil)
		assert.Equal(t, Outlet, got.Intent, "message %q", msg)
	}
	assert.Empty(t, llm.Calls())
}

func TestClassify_MixedKeywordsIsAmbiguous(t *testing.T) {
	llm := testutil.NewMockLLM("general")
	r := newTestRouter(t, llm)

	got := r.Classify(context.Background(), "can I buy a tumbler at the Bangsar outlet?", nil)
	assert.Equal(t, Ambiguous, got.Intent)
	assert.Equal(t, mixedConfidence, got.Confidence)
	assert.Empty(t, llm.Calls())
}

func TestClassify_ModelFallback(t *testing.T) {
	tests := []struct {
		label string
		want  Intent
	}{
		{"product", Product},
		{"outlet", Outlet},
		{"general", General},
		{"  Product\n", Product}, // whitespace and case tolerated
	}

	for _, tt := range tests {
		llm := testutil.NewMockLLM(tt.label)
		r := newTestRouter(t, llm)

		got := r.Classify(context.Background(), "hmm, what do you recommend?", nil)
		assert.Equal(t, tt.want, got.Intent, "label %q", tt.label)
		assert.Equal(t, modelConfidence, got.Confidence)
		assert.Len(t, llm.Calls(), 1)
	}
}

func TestClassify_ModelErrorIsAmbiguous(t *testing.T) {
	llm := testutil.NewMockLLM("general")
	llm.FailWith(errors.New("model unavailable"))
	r := newTestRouter(t, llm)

	got := r.Classify(context.Background(), "tell me something", nil)
	assert.Equal(t, Ambiguous, got.Intent)
	assert.Equal(t, fallbackConfidence, got.Confidence)
}

func TestClassify_UnexpectedLabelIsAmbiguous(t *testing.T) {
	llm := testutil.NewMockLLM("I think this is about products, maybe.")
	r := newTestRouter(t, llm)

	got := r.Classify(context.Background(), "tell me something", nil)
	assert.Equal(t, Ambiguous, got.Intent)
}

func TestClassify_HistoryInPrompt(t *testing.T) {
	llm := testutil.NewMockLLM("general")
	r := newTestRouter(t, llm)

	history := []string{"hello", "I like coffee", "what about cold brew"}
	r.Classify(context.Background(), "and that other thing?", history)

	calls := llm.Calls()
	if assert.Len(t, calls, 1) {
		assert.Contains(t, calls[0].UserMessage, "what about cold brew")
		assert.Contains(t, calls[0].UserMessage, "and that other thing?")
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("a red cup please", "cup"))
	assert.False(t, containsWord("she had hiccups", "cup"))
	assert.True(t, containsWord("cup", "cup"))
	assert.True(t, containsWord("cup.", "cup"))
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "general", General.String())
	assert.Equal(t, "product", Product.String())
	assert.Equal(t, "outlet", Outlet.String())
	assert.Equal(t, "ambiguous", Ambiguous.String())
}
