package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopihq/kopi/internal/log"
)

// fakeTranslator returns a canned query or error.
type fakeTranslator struct {
	query OutletQuery
	err   error
}

func (f *fakeTranslator) Translate(context.Context, string, int) (OutletQuery, error) {
	return f.query, f.err
}

// fakeExecutor returns canned rows or an error.
type fakeExecutor struct {
	outlets []Outlet
	err     error
	got     OutletQuery
}

func (f *fakeExecutor) Execute(_ context.Context, q OutletQuery) ([]Outlet, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.outlets, nil
}

func TestStructuredBackend_Search(t *testing.T) {
	exec := &fakeExecutor{outlets: []Outlet{
		{ID: 7, Name: "Kopi Coffee SS15", Address: "Subang Jaya, Selangor", OpensAt: "Monday, 8am–10pm"},
	}}
	b := NewStructuredBackend(&fakeTranslator{query: OutletQuery{Address: "Selangor"}}, exec, log.NewNop())

	candidates, err := b.Search(context.Background(), "outlets in Selangor", 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, SourceStructured, candidates[0].Source)
	assert.Equal(t, ExactMatchScore, candidates[0].Score)
	assert.Equal(t, "outlet:7", candidates[0].Provenance)
	assert.Contains(t, candidates[0].Content, "Kopi Coffee SS15")
	assert.Equal(t, 3, exec.got.Limit, "limit should default to topK")
}

func TestStructuredBackend_Search_UnmappablePhrase(t *testing.T) {
	// A zero query means translation could not map the phrase. That is a
	// fall-through to general chat, not an error.
	exec := &fakeExecutor{}
	b := NewStructuredBackend(&fakeTranslator{query: OutletQuery{}}, exec, log.NewNop())

	candidates, err := b.Search(context.Background(), "tell me a joke", 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, OutletQuery{}, exec.got, "executor must not run for unmappable phrases")
}

func TestStructuredBackend_Search_TranslationError(t *testing.T) {
	b := NewStructuredBackend(&fakeTranslator{err: errors.New("model unavailable")}, &fakeExecutor{}, log.NewNop())

	candidates, err := b.Search(context.Background(), "outlets in KL", 3)
	require.NoError(t, err, "translation failure yields empty result, not an error")
	assert.Empty(t, candidates)
}

func TestStructuredBackend_Search_ExecutorError(t *testing.T) {
	b := NewStructuredBackend(
		&fakeTranslator{query: OutletQuery{Address: "KL"}},
		&fakeExecutor{err: errors.New("connection refused")},
		log.NewNop(),
	)

	_, err := b.Search(context.Background(), "outlets in KL", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildOutletSQL_Parameterized(t *testing.T) {
	q := OutletQuery{
		Name:    "'; DROP TABLE outlets; --",
		Address: "Selangor",
		Limit:   5,
	}

	sql, args := buildOutletSQL(q)

	// The hostile value must only ever appear as a bound argument.
	assert.NotContains(t, sql, "DROP TABLE")
	assert.Contains(t, sql, "name ILIKE $1")
	assert.Contains(t, sql, "address ILIKE $2")
	assert.Contains(t, sql, "LIMIT $3")
	require.Len(t, args, 3)
	assert.Equal(t, "%'; DROP TABLE outlets; --%", args[0])
	assert.Equal(t, "%Selangor%", args[1])
	assert.Equal(t, 5, args[2])
}

func TestBuildOutletSQL_OpenAfter(t *testing.T) {
	q := OutletQuery{OpenAfter: "9pm", Limit: 3}

	sql, args := buildOutletSQL(q)

	assert.Contains(t, sql, "opens_at LIKE $1")
	// 9pm, 10pm, 11pm, plus the 12am wraparound.
	require.Len(t, args, 5) // 4 patterns + limit
	assert.Equal(t, "%–9%pm%", args[0])
	assert.Equal(t, "%–11%pm%", args[2])
	assert.Equal(t, "%–12%am%", args[3])
}

func TestBuildOutletSQL_NoFilters(t *testing.T) {
	sql, args := buildOutletSQL(OutletQuery{Limit: 2})

	assert.NotContains(t, sql, "WHERE")
	require.Len(t, args, 1)
	assert.Equal(t, 2, args[0])
}

func TestParseClockHour(t *testing.T) {
	tests := []struct {
		in       string
		hour     int
		meridiem string
		ok       bool
	}{
		{"9pm", 9, "pm", true},
		{"9 PM", 9, "pm", true},
		{"11:30am", 11, "am", true},
		{"13pm", 0, "", false},
		{"evening", 0, "", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		hour, meridiem, ok := parseClockHour(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.hour, hour, "input %q", tt.in)
			assert.Equal(t, tt.meridiem, meridiem, "input %q", tt.in)
		}
	}
}

func TestParseOutletQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want OutletQuery
	}{
		{"plain json", `{"address":"Selangor","open_after":"9pm"}`, OutletQuery{Address: "Selangor", OpenAfter: "9pm"}},
		{"fenced json", "```json\n{\"name\":\"SS15\"}\n```", OutletQuery{Name: "SS15"}},
		{"empty object", `{}`, OutletQuery{}},
		{"blank reply", "", OutletQuery{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutletQuery(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutletQuery_Garbage(t *testing.T) {
	_, err := parseOutletQuery("SELECT * FROM outlets")
	assert.Error(t, err)
}
