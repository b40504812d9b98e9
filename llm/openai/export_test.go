package openai

import (
	"github.com/m-mizutani/numguess"
)

// Export for testing
type APIClient = apiClient

var StatusCode = statusCode

// NewSessionWithAPIClient creates a new session with a custom API client for testing
func NewSessionWithAPIClient(client apiClient, model string, options ...numguess.SessionOption) *Session {
	return newSession(client, model, generationParameters{}, "", options...)
}
