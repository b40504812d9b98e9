// Package internal holds helpers shared by the tests of this module.
package internal

import (
	"io"
	"log/slog"
	"os"
)

var testLogger *slog.Logger

func init() {
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	if os.Getenv("NUMGUESS_TEST_LOG") == "1" {
		testLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
}

// TestLogger returns a logger that discards everything unless NUMGUESS_TEST_LOG=1.
func TestLogger() *slog.Logger {
	return testLogger
}
