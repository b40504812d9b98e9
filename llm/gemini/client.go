package gemini

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.5-flash"
)

// Client is a client for the Gemini API.
// It provides methods to interact with Google's Gemini models.
type Client struct {
	// Vertex AI backend is used when projectID is set.
	projectID string
	location  string

	// client is the underlying Gemini client.
	client *genai.Client

	// defaultModel is the model to use for chat completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// generationConfig contains the default generation parameters
	generationConfig *genai.GenerateContentConfig

	// systemPrompt is the system prompt to use for chat completions.
	systemPrompt string
}

// Option is a configuration option for the Gemini client.
type Option func(*Client)

// WithModel sets the model to use for text generation.
// Default: [DefaultModel]
func WithModel(model string) Option {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithVertexAI switches the backend from the Gemini API to Vertex AI of the given project and location.
// Credentials are taken from Application Default Credentials.
func WithVertexAI(projectID, location string) Option {
	return func(c *Client) {
		c.projectID = projectID
		c.location = location
	}
}

// WithTemperature sets the temperature parameter for text generation.
// Range: 0.0 to 2.0
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.generationConfig.Temperature = &temp
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int32) Option {
	return func(c *Client) {
		c.generationConfig.MaxOutputTokens = maxTokens
	}
}

// WithThinkingBudget sets the thinking budget for text generation.
// A value of -1 enables automatic thinking budget allocation. Default is 0.
func WithThinkingBudget(budget int32) Option {
	return func(c *Client) {
		if c.generationConfig.ThinkingConfig == nil {
			c.generationConfig.ThinkingConfig = &genai.ThinkingConfig{}
		}
		c.generationConfig.ThinkingConfig.ThinkingBudget = &budget
	}
}

// WithSystemPrompt sets the system prompt to use for chat completions.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// New creates a new client for the Gemini API. apiKey may be empty with WithVertexAI.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	var budget int32 = 0

	client := &Client{
		defaultModel: DefaultModel,
		generationConfig: &genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: &budget,
			},
		},
	}

	for _, option := range options {
		option(client)
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if client.projectID != "" {
		if client.location == "" {
			return nil, goerr.Wrap(numguess.ErrInvalidParameter, "location is required for Vertex AI")
		}
		config = &genai.ClientConfig{
			Project:  client.projectID,
			Location: client.location,
			Backend:  genai.BackendVertexAI,
		}
	} else if apiKey == "" {
		return nil, goerr.Wrap(numguess.ErrInvalidParameter, "Gemini API key or Vertex AI project is required")
	}

	newClient, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}

	client.client = newClient
	return client, nil
}

// Model returns the model used by new sessions.
func (c *Client) Model() string {
	return c.defaultModel
}

// NewSession creates a new session for the Gemini API.
func (c *Client) NewSession(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
	return newSession(&realAPIClient{client: c.client}, c.defaultModel, c.generationConfig, c.systemPrompt, options...), nil
}

func newSession(client apiClient, model string, base *genai.GenerateContentConfig, systemPrompt string, options ...numguess.SessionOption) *Session {
	cfg := numguess.NewSessionConfig(options...)

	config := &genai.GenerateContentConfig{}
	if base != nil {
		*config = *base
	}
	config.ResponseMIMEType = "text/plain"

	if cfg.SystemPrompt() != "" {
		systemPrompt = cfg.SystemPrompt()
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Role: "system",
			Parts: []*genai.Part{
				{Text: systemPrompt},
			},
		}
	}

	return &Session{
		apiClient: client,
		model:     model,
		config:    config,
	}
}

// Session is a session for the Gemini chat.
// It maintains the conversation state and handles message generation.
type Session struct {
	// apiClient is the API client interface for dependency injection
	apiClient apiClient

	// model is the model name to use
	model string

	// config is the generation configuration
	config *genai.GenerateContentConfig

	mu       sync.Mutex
	contents []*genai.Content
}

// History returns the conversation so far.
func (s *Session) History() []numguess.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]numguess.Message, 0, len(s.contents))
	for _, content := range s.contents {
		role := numguess.RoleUser
		if content.Role == genai.RoleModel {
			role = numguess.RoleAssistant
		}
		var texts []string
		for _, part := range content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		history = append(history, numguess.Message{Role: role, Content: strings.Join(texts, "\n")})
	}
	return history
}

// Close implements numguess.Session. GenerateContent calls are stateless on the server side.
func (s *Session) Close(ctx context.Context) error {
	return nil
}

// convertInputs converts numguess.Input to Gemini parts
func convertInputs(input ...numguess.Input) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(input))
	for _, in := range input {
		v, ok := in.(numguess.Text)
		if !ok {
			return nil, goerr.Wrap(numguess.ErrInvalidParameter, "invalid input")
		}
		parts = append(parts, &genai.Part{Text: string(v)})
	}
	return parts, nil
}

func processResponse(resp *genai.GenerateContentResponse) *numguess.Response {
	response := &numguess.Response{}
	if resp == nil {
		return response
	}
	if resp.UsageMetadata != nil {
		response.InputToken = int(resp.UsageMetadata.PromptTokenCount)
		response.OutputToken = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return response
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			response.Texts = append(response.Texts, part.Text)
		}
	}
	return response
}

// GenerateContent generates content based on the input.
// History is updated only when the model returned text.
func (s *Session) GenerateContent(ctx context.Context, input ...numguess.Input) (*numguess.Response, error) {
	parts, err := convertInputs(input...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userContent := &genai.Content{Role: genai.RoleUser, Parts: parts}
	contents := append(slices.Clone(s.contents), userContent)

	numguess.LoggerFromContext(ctx).Debug("Gemini request",
		slog.String("model", s.model),
		slog.Int("contents", len(contents)),
	)

	resp, err := s.apiClient.GenerateContent(ctx, s.model, contents, s.config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", errorOptions(err)...)
	}

	response := processResponse(resp)
	if !response.HasData() {
		return response, nil
	}

	s.contents = append(contents, &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: response.Text()}},
	})
	return response, nil
}

// errorOptions tags quota and availability errors as transient.
func errorOptions(err error) []goerr.Option {
	code := 0
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	if numguess.IsTransientStatus(code) || isTransientMessage(err.Error()) {
		return []goerr.Option{goerr.V("status_code", code), goerr.Tag(numguess.TagTransient)}
	}
	return []goerr.Option{goerr.V("status_code", code)}
}

func isTransientMessage(msg string) bool {
	for _, s := range []string{"RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL", "Error 429", "Error 500", "Error 503"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
