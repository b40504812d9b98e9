package gemini

import (
	"context"

	genai "google.golang.org/genai"
)

// apiClient is the interface for Gemini API calls (unexported for encapsulation)
// This interface provides stateless API calls without chat session dependency
type apiClient interface {
	// GenerateContent generates content without maintaining chat state
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// realAPIClient wraps the actual Gemini client for stateless operations
type realAPIClient struct {
	client *genai.Client
}

func (r *realAPIClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return r.client.Models.GenerateContent(ctx, model, contents, config)
}
