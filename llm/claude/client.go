package claude

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

// generationParameters represents the parameters for text generation.
type generationParameters struct {
	// Temperature controls randomness in the output. A negative value leaves the API default.
	Temperature float64

	// MaxTokens limits the number of tokens to generate.
	MaxTokens int64
}

// Client is a client for the Claude API.
// It provides methods to interact with Anthropic's Claude models.
type Client struct {
	// client is the underlying Claude client.
	client *anthropic.Client

	// defaultModel is the model to use for chat completions.
	// It can be overridden using WithModel option.
	defaultModel string

	baseURL string

	// generation parameters
	params generationParameters

	systemPrompt string
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for chat completions.
// Default: [DefaultModel]
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// WithTemperature sets the temperature parameter for text generation.
// Range: 0.0 to 1.0
func WithTemperature(temp float64) Option {
	return func(c *Client) {
		c.params.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
// Default: [DefaultMaxTokens]
func WithMaxTokens(maxTokens int64) Option {
	return func(c *Client) {
		c.params.MaxTokens = maxTokens
	}
}

// WithSystemPrompt sets the system prompt used when the session does not set one.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithBaseURL sets a custom endpoint of the Anthropic API.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// New creates a new client for the Claude API.
// It requires an API key and can be configured with additional options.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(numguess.ErrInvalidParameter, "Anthropic API key is required")
	}

	client := &Client{
		defaultModel: DefaultModel,
		params: generationParameters{
			Temperature: -1,
			MaxTokens:   DefaultMaxTokens,
		},
	}

	for _, option := range options {
		option(client)
	}

	reqOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if client.baseURL != "" {
		reqOptions = append(reqOptions, option.WithBaseURL(client.baseURL))
	}
	newClient := anthropic.NewClient(reqOptions...)
	client.client = &newClient

	return client, nil
}

// Model returns the model used by new sessions.
func (c *Client) Model() string {
	return c.defaultModel
}

// Session is a session for the Claude chat.
// It maintains the conversation state and handles message generation.
type Session struct {
	apiClient    apiClient
	defaultModel string
	params       generationParameters
	systemPrompt string

	mu       sync.Mutex
	messages []numguess.Message
}

// NewSession creates a new session for the Claude API.
func (c *Client) NewSession(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
	return newSession(&realAPIClient{client: c.client}, c.defaultModel, c.params, c.systemPrompt, options...), nil
}

func newSession(client apiClient, model string, params generationParameters, systemPrompt string, options ...numguess.SessionOption) *Session {
	cfg := numguess.NewSessionConfig(options...)
	if cfg.SystemPrompt() != "" {
		systemPrompt = cfg.SystemPrompt()
	}
	return &Session{
		apiClient:    client,
		defaultModel: model,
		params:       params,
		systemPrompt: systemPrompt,
	}
}

// History returns the conversation so far.
func (s *Session) History() []numguess.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]numguess.Message(nil), s.messages...)
}

// Close implements numguess.Session. The Messages API keeps no server side state.
func (s *Session) Close(ctx context.Context) error {
	return nil
}

func createSystemPrompt(prompt string) []anthropic.TextBlockParam {
	if prompt == "" {
		return nil
	}
	return []anthropic.TextBlockParam{{Text: prompt}}
}

func convertMessages(history []numguess.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == numguess.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

func inputText(input ...numguess.Input) (string, error) {
	parts := make([]string, 0, len(input))
	for _, in := range input {
		v, ok := in.(numguess.Text)
		if !ok {
			return "", goerr.Wrap(numguess.ErrInvalidParameter, "invalid input")
		}
		parts = append(parts, string(v))
	}
	return strings.Join(parts, "\n"), nil
}

// GenerateContent sends the input as a user message and returns the reply.
// History is updated only when the model returned text.
func (s *Session) GenerateContent(ctx context.Context, input ...numguess.Input) (*numguess.Response, error) {
	text, err := inputText(input...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userMessage := numguess.Message{Role: numguess.RoleUser, Content: text}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.defaultModel),
		MaxTokens: s.params.MaxTokens,
		Messages:  convertMessages(append(slices.Clone(s.messages), userMessage)),
		System:    createSystemPrompt(s.systemPrompt),
	}
	if s.params.Temperature >= 0 {
		params.Temperature = anthropic.Float(s.params.Temperature)
	}

	numguess.LoggerFromContext(ctx).Debug("Claude request",
		slog.String("model", s.defaultModel),
		slog.Int("messages", len(params.Messages)),
	)

	resp, err := s.apiClient.MessagesNew(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message", errorOptions(err)...)
	}

	response := &numguess.Response{
		InputToken:  int(resp.Usage.InputTokens),
		OutputToken: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			response.Texts = append(response.Texts, block.Text)
		}
	}
	if !response.HasData() {
		return response, nil
	}

	s.messages = append(s.messages, userMessage, numguess.Message{
		Role:    numguess.RoleAssistant,
		Content: response.Text(),
	})
	return response, nil
}

// errorOptions tags rate limit, overload and server errors as transient.
func errorOptions(err error) []goerr.Option {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return nil
	}
	opts := []goerr.Option{goerr.V("status_code", apiErr.StatusCode)}
	if numguess.IsTransientStatus(apiErr.StatusCode) {
		opts = append(opts, goerr.Tag(numguess.TagTransient))
	}
	return opts
}
