package numguess

//go:generate go run github.com/matryer/moq@v0.5.3 -out mock/mock_gen.go -pkg mock . LLMClient Session

import (
	"context"
	"log/slog"
	"strings"
)

// LLMClient is a client for each conversational model service. A client creates
// independent sessions; a session never shares its conversation with another one.
type LLMClient interface {
	NewSession(ctx context.Context, options ...SessionOption) (Session, error)
}

// Session is one ongoing two-role conversation.
//
// GenerateContent appends the inputs as a user turn, calls the model and appends the
// reply as an assistant turn. When it returns an error the history is left as it was
// before the call, so the same input can be submitted again.
type Session interface {
	GenerateContent(ctx context.Context, input ...Input) (*Response, error)
	History() []Message

	// Close releases the session. It must be safe to call more than once.
	Close(ctx context.Context) error
}

// Response is a general response type for each provider.
type Response struct {
	Texts       []string
	InputToken  int
	OutputToken int
}

// Text returns all text parts joined by a newline.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Texts, "\n")
}

// HasData reports whether the model returned any text.
func (r *Response) HasData() bool {
	if r == nil {
		return false
	}
	for _, t := range r.Texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

type Input interface {
	isInput() restrictedValue
	LogValue() slog.Value
	String() string
}

type restrictedValue struct{}

// Text is a text input as prompt.
// Usage:
// input := numguess.Text("Is the number 3?")
type Text string

func (t Text) isInput() restrictedValue {
	return restrictedValue{}
}

func (t Text) LogValue() slog.Value {
	return slog.StringValue(string(t))
}

func (t Text) String() string {
	return string(t)
}

// MessageRole represents the role of a message in a conversation
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a provider independent view of one conversation turn.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// SessionConfig is the configuration resolved from SessionOption values.
type SessionConfig struct {
	systemPrompt string
}

// SystemPrompt returns the system prompt of the session, or empty string.
func (c SessionConfig) SystemPrompt() string {
	return c.systemPrompt
}

// SessionOption configures a new session.
type SessionOption func(*SessionConfig)

// WithSessionSystemPrompt sets the system prompt of the session.
func WithSessionSystemPrompt(prompt string) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.systemPrompt = prompt
	}
}

// NewSessionConfig builds a SessionConfig. Provider implementations call it in NewSession.
func NewSessionConfig(options ...SessionOption) SessionConfig {
	cfg := SessionConfig{}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}
