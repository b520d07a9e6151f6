package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
//
// Use this in tests to reduce noise. internal/log.Logger is a type alias
// for *slog.Logger, so this is interchangeable with log.NewNop().
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
