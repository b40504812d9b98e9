package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/numguess"
	"github.com/urfave/cli/v3"
)

// Config exposes the resolved settings of the run command for testing.
type Config struct {
	Provider     string
	Model        string
	Trials       int
	Range        numguess.Range
	Timeout      time.Duration
	MaxAttempts  int
	Concurrency  int
	Corrections  int
	Seed         uint64
	FailureLimit int
	Output       string
	Labels       map[string]string
	Prompts      *numguess.PromptTemplates
	Vocabulary   *numguess.Vocabulary
	DriverOpts   int
}

// ResolveConfig parses args as the run command would and returns the resulting settings without running.
func ResolveConfig(ctx context.Context, args ...string) (*Config, error) {
	var resolved *Config
	cmd := runCommand()
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		opts, err := cfg.driverOptions()
		if err != nil {
			return err
		}
		resolved = &Config{
			Provider:     cfg.Provider,
			Model:        cfg.Model,
			Trials:       cfg.Trials,
			Range:        cfg.rangeOf(),
			Timeout:      cfg.Timeout,
			MaxAttempts:  cfg.retryPolicy().MaxAttempts,
			Concurrency:  cfg.Concurrency,
			Corrections:  cfg.Corrections,
			Seed:         cfg.Seed,
			FailureLimit: cfg.FailureLimit,
			Output:       cfg.Output,
			Labels:       cfg.Labels,
			Prompts:      cfg.Prompts,
			Vocabulary:   cfg.Vocabulary,
			DriverOpts:   len(opts),
		}
		return nil
	}

	if err := cmd.Run(ctx, append([]string{"run"}, args...)); err != nil {
		return nil, err
	}
	return resolved, nil
}

// RunApp runs the CLI with args, writing command output to w.
func RunApp(ctx context.Context, w io.Writer, args ...string) error {
	app := newApp()
	app.Writer = w
	return app.Run(ctx, append([]string{"numguess"}, args...))
}

var WriteSummary = writeSummary

// Server options for testing
var NewServer = newServer
var WithTraces = withTraces
var WithResultDir = withResultDir
var WithGatherer = withGatherer

// Handler returns the server's HTTP handler for testing.
func (s *server) Handler() http.Handler {
	return s.handler()
}
var InterruptContext = interruptContext
