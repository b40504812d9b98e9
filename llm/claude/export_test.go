package claude

import (
	"github.com/m-mizutani/numguess"
)

// Export convert functions for testing
var (
	ConvertMessages    = convertMessages
	CreateSystemPrompt = createSystemPrompt
)

// Export for testing
type APIClient = apiClient

// NewSessionWithAPIClient creates a new session with a custom API client for testing
func NewSessionWithAPIClient(client apiClient, model string, options ...numguess.SessionOption) *Session {
	return newSession(client, model, generationParameters{Temperature: -1, MaxTokens: DefaultMaxTokens}, "", options...)
}
