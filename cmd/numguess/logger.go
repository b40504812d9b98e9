package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, goerr.Wrap(err, "invalid log level", goerr.V("level", level))
	}

	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, goerr.New("invalid log format", goerr.V("format", format))
	}
}
