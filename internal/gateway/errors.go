package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the orchestrator. Everything else mid-turn
// degrades instead of failing: some answer beats no answer.
var (
	// ErrRateLimited rejects a turn before any work is done.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrEmptyMessage rejects a request with no message text.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrGenerationTimeout marks a turn whose generation call expired.
	// It is logged, never returned: the turn completes degraded.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// RateLimitError carries the retry hint alongside ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
