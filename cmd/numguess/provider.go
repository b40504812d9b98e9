package main

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/llm/claude"
	"github.com/m-mizutani/numguess/llm/control"
	"github.com/m-mizutani/numguess/llm/gemini"
	"github.com/m-mizutani/numguess/llm/openai"
)

// modelClient is what run needs from a provider client.
type modelClient interface {
	numguess.LLMClient
	Model() string
}

func newModelClient(ctx context.Context, cfg *config) (modelClient, error) {
	switch cfg.Provider {
	case providerOpenAI:
		var options []openai.Option
		if cfg.Model != "" {
			options = append(options, openai.WithModel(cfg.Model))
		}
		return asModelClient(openai.New(ctx, cfg.OpenAIAPIKey, options...))

	case providerClaude:
		var options []claude.Option
		if cfg.Model != "" {
			options = append(options, claude.WithModel(cfg.Model))
		}
		return asModelClient(claude.New(ctx, cfg.AnthropicAPIKey, options...))

	case providerGemini:
		var options []gemini.Option
		if cfg.Model != "" {
			options = append(options, gemini.WithModel(cfg.Model))
		}
		if cfg.Gemini.Project != "" {
			options = append(options, gemini.WithVertexAI(cfg.Gemini.Project, cfg.Gemini.Location))
		}
		return asModelClient(gemini.New(ctx, cfg.GoogleAPIKey, options...))

	case providerControl:
		options := []control.Option{control.WithRange(cfg.rangeOf())}
		if cfg.Seed != 0 {
			options = append(options, control.WithSeed(cfg.Seed))
		}
		return asModelClient(control.New(options...))
	}

	return nil, goerr.New("unknown provider", goerr.V("provider", cfg.Provider))
}

// asModelClient keeps a nil client pointer from becoming a non-nil interface.
func asModelClient[T modelClient](c T, err error) (modelClient, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
