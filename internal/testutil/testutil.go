// Package testutil provides shared test helpers used across dixcover's unit tests.
package testutil

import (
	"io"
	"log/slog"
)

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
