package main_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/numguess"
	main "github.com/m-mizutani/numguess/cmd/numguess"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := main.ResolveConfig(context.Background())
	gt.NoError(t, err)

	gt.Equal(t, cfg.Provider, "control")
	gt.Equal(t, cfg.Trials, 100)
	gt.Equal(t, cfg.Range, numguess.DefaultRange())
	gt.Equal(t, cfg.Timeout, numguess.DefaultCallTimeout)
	gt.Equal(t, cfg.MaxAttempts, 3)
	gt.Equal(t, cfg.Concurrency, 1)
	gt.Equal(t, cfg.Output, "results")
	gt.Equal(t, cfg.DriverOpts, 3)
}

func TestResolveConfigFlags(t *testing.T) {
	cfg, err := main.ResolveConfig(context.Background(),
		"--provider", "anthropic",
		"--model", "claude-opus-4-1",
		"--trials", "20",
		"--low", "1",
		"--high", "5",
		"--timeout", "5s",
		"--max-retries", "0",
		"--concurrency", "4",
		"--seed", "42",
		"--label", "prompt=v2",
	)
	gt.NoError(t, err)

	gt.Equal(t, cfg.Provider, "claude")
	gt.Equal(t, cfg.Model, "claude-opus-4-1")
	gt.Equal(t, cfg.Trials, 20)
	gt.Equal(t, cfg.Range, numguess.Range{Low: 1, High: 5})
	gt.Equal(t, cfg.Timeout, 5*time.Second)
	gt.Equal(t, cfg.MaxAttempts, 1)
	gt.Equal(t, cfg.Concurrency, 4)
	gt.Equal(t, cfg.Seed, uint64(42))
	gt.Equal(t, cfg.Labels["prompt"], "v2")
}

func TestResolveConfigFile(t *testing.T) {
	path := writeConfig(t, `
provider: gemini
model: gemini-2.5-pro
trials: 30
low: 0
high: 6
timeout: 90s
max_retries: 4
failure_limit: 5
labels:
  run: nightly
prompts:
  guess: "Ist die Zahl {{.Guess}}?"
vocabulary:
  affirmative: ["richtig"]
  negative: ["falsch", "nicht richtig"]
`)

	t.Run("file values", func(t *testing.T) {
		cfg, err := main.ResolveConfig(context.Background(), "--config", path)
		gt.NoError(t, err)

		gt.Equal(t, cfg.Provider, "gemini")
		gt.Equal(t, cfg.Model, "gemini-2.5-pro")
		gt.Equal(t, cfg.Trials, 30)
		gt.Equal(t, cfg.Range, numguess.Range{Low: 0, High: 6})
		gt.Equal(t, cfg.Timeout, 90*time.Second)
		gt.Equal(t, cfg.MaxAttempts, 5)
		gt.Equal(t, cfg.FailureLimit, 5)
		gt.Equal(t, cfg.Labels["run"], "nightly")
		gt.V(t, cfg.Prompts).NotNil()
		gt.Equal(t, cfg.Prompts.Guess, "Ist die Zahl {{.Guess}}?")
		gt.V(t, cfg.Vocabulary).NotNil()
		gt.Equal(t, cfg.Vocabulary.Affirmative, []string{"richtig"})
		// timeout, retry policy, corrections, prompts and vocabulary
		gt.Equal(t, cfg.DriverOpts, 5)
	})

	t.Run("flags win over file", func(t *testing.T) {
		cfg, err := main.ResolveConfig(context.Background(), "--config", path, "--trials", "7", "--high", "3")
		gt.NoError(t, err)

		gt.Equal(t, cfg.Trials, 7)
		gt.Equal(t, cfg.Range, numguess.Range{Low: 0, High: 3})
		gt.Equal(t, cfg.Model, "gemini-2.5-pro")
	})
}

func TestResolveConfigInvalid(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--provider", "llama")
		gt.Error(t, err)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--low", "10", "--high", "1")
		gt.True(t, errors.Is(err, numguess.ErrInvalidRange))
	})

	t.Run("zero trials", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--trials", "0")
		gt.True(t, errors.Is(err, numguess.ErrInvalidTrialCount))
	})

	t.Run("negative retries", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--max-retries=-1")
		gt.Error(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--config", filepath.Join(t.TempDir(), "none.yaml"))
		gt.Error(t, err)
	})

	t.Run("broken config file", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--config", writeConfig(t, "trials: [1, 2"))
		gt.Error(t, err)
	})

	t.Run("broken prompt template", func(t *testing.T) {
		_, err := main.ResolveConfig(ctx, "--config", writeConfig(t, "prompts:\n  setup: \"{{.Low\"\n"))
		gt.Error(t, err)
	})
}
