package openai

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
	"github.com/sashabaranov/go-openai"
)

// generationParameters represents the parameters for text generation.
type generationParameters struct {
	// Temperature controls randomness in the output.
	// Higher values make the output more random, lower values make it more focused.
	Temperature float32

	// TopP controls diversity via nucleus sampling.
	TopP float32

	// MaxTokens limits the number of tokens to generate.
	MaxTokens int

	// ReasoningEffort tunes how much reasoning time the model spends ("minimal", "medium", "high").
	ReasoningEffort string
}

// Client is a client for the OpenAI API.
type Client struct {
	// client is the underlying OpenAI client.
	client *openai.Client

	// defaultModel is the model to use for chat completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// baseURL is the custom base URL for the OpenAI API.
	// If empty, uses the default OpenAI API endpoints.
	baseURL string

	// generation parameters
	params generationParameters

	// systemPrompt is used when the session does not set one.
	systemPrompt string
}

const (
	DefaultModel = "gpt-5-mini"
)

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for chat completions.
// See default model in [DefaultModel].
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// WithTemperature sets the temperature parameter for text generation.
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.params.Temperature = temp
	}
}

// WithTopP sets the top_p parameter for text generation.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.params.TopP = topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Client) {
		c.params.MaxTokens = maxTokens
	}
}

// WithReasoningEffort sets the reasoning_effort parameter of reasoning models.
func WithReasoningEffort(effort string) Option {
	return func(c *Client) {
		c.params.ReasoningEffort = effort
	}
}

// WithSystemPrompt sets the system prompt to use for chat completions.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithBaseURL sets the custom base URL for the OpenAI API.
// Allows usage with compatible endpoints, proxies, or self-hosted instances.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// New creates a new client for the OpenAI API.
// It requires an API key and can be configured with additional options.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(numguess.ErrInvalidParameter, "OpenAI API key is required")
	}

	client := &Client{
		defaultModel: DefaultModel,
	}

	for _, option := range options {
		option(client)
	}

	config := openai.DefaultConfig(apiKey)
	if client.baseURL != "" {
		config.BaseURL = client.baseURL
	}
	client.client = openai.NewClientWithConfig(config)

	return client, nil
}

// Model returns the model used by new sessions.
func (c *Client) Model() string {
	return c.defaultModel
}

// Session is a session for the OpenAI chat.
// It maintains the conversation state and handles message generation.
type Session struct {
	// apiClient is the API client interface for dependency injection.
	apiClient apiClient

	// defaultModel is the model to use for chat completions.
	defaultModel string

	params generationParameters

	mu sync.Mutex
	// messages holds the conversation without the system prompt.
	messages     []openai.ChatCompletionMessage
	systemPrompt string
}

// NewSession creates a new session for the OpenAI API.
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

	history := make([]numguess.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		role := numguess.RoleUser
		if msg.Role == openai.ChatMessageRoleAssistant {
			role = numguess.RoleAssistant
		}
		history = append(history, numguess.Message{Role: role, Content: msg.Content})
	}
	return history
}

// Close implements numguess.Session. OpenAI chat completions are stateless on the server side.
func (s *Session) Close(ctx context.Context) error {
	return nil
}

func convertInputs(input ...numguess.Input) (openai.ChatCompletionMessage, error) {
	var content string
	for _, in := range input {
		switch v := in.(type) {
		case numguess.Text:
			if content != "" {
				content += "\n"
			}
			content += string(v)
		default:
			return openai.ChatCompletionMessage{}, goerr.Wrap(numguess.ErrInvalidParameter, "invalid input")
		}
	}
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}, nil
}

// createRequest builds the request from the committed history plus the pending user message.
func (s *Session) createRequest(userMessage openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(s.messages)+2)
	if s.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}
	messages = append(messages, s.messages...)
	messages = append(messages, userMessage)

	req := openai.ChatCompletionRequest{
		Model:       s.defaultModel,
		Messages:    messages,
		Temperature: s.params.Temperature,
		TopP:        s.params.TopP,
	}
	if s.params.MaxTokens > 0 {
		req.MaxCompletionTokens = s.params.MaxTokens
	}
	if s.params.ReasoningEffort != "" {
		req.ReasoningEffort = s.params.ReasoningEffort
	}
	return req
}

// GenerateContent sends the input as a user message and returns the reply.
// History is updated only when the model returned text.
func (s *Session) GenerateContent(ctx context.Context, input ...numguess.Input) (*numguess.Response, error) {
	userMessage, err := convertInputs(input...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.createRequest(userMessage)
	numguess.LoggerFromContext(ctx).Debug("OpenAI request",
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
	)

	resp, err := s.apiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion", errorOptions(err)...)
	}

	response := &numguess.Response{
		InputToken:  resp.Usage.PromptTokens,
		OutputToken: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return response, nil
	}

	message := resp.Choices[0].Message
	if message.Content == "" {
		return response, nil
	}
	response.Texts = append(response.Texts, message.Content)

	s.messages = append(s.messages, userMessage, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: message.Content,
	})

	return response, nil
}

// errorOptions tags rate limit and server errors as transient.
func errorOptions(err error) []goerr.Option {
	code := statusCode(err)
	opts := []goerr.Option{goerr.V("status_code", code)}
	if numguess.IsTransientStatus(code) {
		opts = append(opts, goerr.Tag(numguess.TagTransient))
	}
	return opts
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
