package gemini

import (
	"github.com/m-mizutani/numguess"
	"google.golang.org/genai"
)

// Export for testing
type APIClient = apiClient

var IsTransientMessage = isTransientMessage

// Config returns the generation config of the session for testing
func (s *Session) Config() *genai.GenerateContentConfig {
	return s.config
}

// NewSessionWithAPIClient creates a new session with a custom API client for testing
func NewSessionWithAPIClient(client apiClient, model string, options ...numguess.SessionOption) *Session {
	return newSession(client, model, &genai.GenerateContentConfig{}, "", options...)
}
