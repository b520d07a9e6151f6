package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// topKPatterns pull an explicit result count out of the message, e.g.
// "top 5 tumblers" or "show me 10 outlets".
var topKPatterns = []*regexp.Regexp{
	regexp.MustCompile(`top\s+(\d+)`),
	regexp.MustCompile(`first\s+(\d+)`),
	regexp.MustCompile(`show\s+me\s+(\d+)`),
	regexp.MustCompile(`give\s+me\s+(\d+)`),
	regexp.MustCompile(`list\s+(\d+)`),
	regexp.MustCompile(`(\d+)\s+items?`),
	regexp.MustCompile(`(\d+)\s+products?`),
	regexp.MustCompile(`(\d+)\s+outlets?`),
}

// ExtractTopK returns the result count the user asked for, clamped to
// [1, maxK], or def when the message names none.
func ExtractTopK(message string, def, maxK int) int {
	lower := strings.ToLower(message)
	for _, pat := range topKPatterns {
		m := pat.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		k, err := strconv.Atoi(m[1])
		if err != nil || k < 1 {
			continue
		}
		return min(k, maxK)
	}
	return def
}

// answerPatterns strip scaffolding some models wrap around their reply.
var answerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)final refined answer:\s*(.+)`),
	regexp.MustCompile(`(?is)answer:\s*(.+)`),
	regexp.MustCompile(`(?is)summary:\s*(.+)`),
	regexp.MustCompile(`(?is)based on the information:\s*(.+)`),
}

// ExtractAnswer returns the answer portion of a model response, dropping
// any leading "Answer:" style preamble.
func ExtractAnswer(response string) string {
	for _, pat := range answerPatterns {
		if m := pat.FindStringSubmatch(response); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return strings.TrimSpace(response)
}
