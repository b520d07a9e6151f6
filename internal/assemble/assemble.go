// Package assemble merges retrieval candidates into a bounded prompt
// context. Candidates are ranked by relevance with structured results
// winning ties (exact rows beat similarity hits), deduplicated, and then
// greedily packed under a byte budget.
package assemble

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kopihq/kopi/internal/retrieval"
)

// Context is the assembled, budget-bounded candidate sequence.
// Invariant: Size never exceeds the budget given to Assemble.
type Context struct {
	Candidates []retrieval.Candidate
	Size       int  // total content bytes
	Truncated  bool // true when the sole surfaced candidate was cut to fit
}

// Empty reports whether nothing survived assembly.
func (c Context) Empty() bool { return len(c.Candidates) == 0 }

// Render joins candidate contents for the generation prompt.
func (c Context) Render() string {
	parts := make([]string, 0, len(c.Candidates))
	for _, cand := range c.Candidates {
		parts = append(parts, cand.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// sourcePriority breaks score ties: structured answers are exact, so they
// outrank vector hits.
func sourcePriority(s retrieval.Source) int {
	if s == retrieval.SourceStructured {
		return 1
	}
	return 0
}

// Assemble ranks, deduplicates, and packs candidates under a byte budget.
//
// Ordering is (score desc, source priority desc). Duplicates, meaning the
// same provenance or the same normalized content, keep only the
// higher-ranked instance. Packing is greedy; a candidate that would
// overflow is dropped,
// except that when nothing has fit yet the top candidate is truncated to
// the budget so any available context surfaces.
func Assemble(candidates []retrieval.Candidate, budget int) Context {
	if budget <= 0 || len(candidates) == 0 {
		return Context{}
	}

	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b retrieval.Candidate) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return sourcePriority(b.Source) - sourcePriority(a.Source)
	})

	ranked = dedupe(ranked)

	var out Context
	for _, cand := range ranked {
		size := len(cand.Content)
		if out.Size+size <= budget {
			out.Candidates = append(out.Candidates, cand)
			out.Size += size
			continue
		}

		// Overflow. If nothing has fit yet, truncate the top candidate so
		// at least one piece of context is surfaced.
		if len(out.Candidates) == 0 {
			cand.Content = truncateBytes(cand.Content, budget)
			if cand.Content == "" {
				return out
			}
			out.Candidates = append(out.Candidates, cand)
			out.Size += len(cand.Content)
			out.Truncated = true
		}
		// Everything after the first overflow is dropped; ranking already
		// placed the best candidates first.
	}
	return out
}

// dedupe removes candidates whose provenance or normalized content matches
// an earlier (higher-ranked) one.
func dedupe(ranked []retrieval.Candidate) []retrieval.Candidate {
	seenProv := make(map[string]struct{}, len(ranked))
	seenContent := make(map[string]struct{}, len(ranked))

	out := ranked[:0]
	for _, cand := range ranked {
		if cand.Provenance != "" {
			if _, dup := seenProv[cand.Provenance]; dup {
				continue
			}
		}
		norm := cand.NormalizedContent()
		if _, dup := seenContent[norm]; dup {
			continue
		}
		if cand.Provenance != "" {
			seenProv[cand.Provenance] = struct{}{}
		}
		seenContent[norm] = struct{}{}
		out = append(out, cand)
	}
	return out
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
