// Package control provides a local responder that behaves like an ideal player: it picks a secret uniformly from
// the range at the first turn of each session and answers every guess consistently with it. Its distribution of
// match positions is the uniform baseline that model results are compared with.
package control

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
)

const (
	ModelName = "control"

	ReplyReady     = "Okay, I have a number."
	ReplyCorrect   = "correct"
	ReplyIncorrect = "not correct"
)

// Client creates control sessions.
type Client struct {
	r   numguess.Range
	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Client.
type Option func(*Client)

// WithRange sets the range the secret is drawn from. Default is numguess.DefaultRange().
func WithRange(r numguess.Range) Option {
	return func(c *Client) {
		c.r = r
	}
}

// WithSeed makes the secrets reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Client) {
		c.rng = rand.New(rand.NewPCG(seed, ^seed)) // #nosec G404
	}
}

// New creates a control client.
func New(options ...Option) (*Client, error) {
	c := &Client{
		r: numguess.DefaultRange(),
	}
	for _, opt := range options {
		opt(c)
	}
	if err := c.r.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Model returns ModelName.
func (c *Client) Model() string {
	return ModelName
}

func (c *Client) draw() int {
	if c.rng == nil {
		return c.r.Low + rand.IntN(c.r.Size()) // #nosec G404
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r.Low + c.rng.IntN(c.r.Size())
}

// NewSession creates a session. The secret is drawn at the first turn.
func (c *Client) NewSession(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
	return &Session{
		id:     uuid.NewString(),
		client: c,
	}, nil
}

// Session is one game of the control player.
type Session struct {
	id     string
	client *Client

	mu       sync.Mutex
	secret   int
	ready    bool
	closed   bool
	messages []numguess.Message
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

var numberPattern = regexp.MustCompile(`-?\d+`)

// GenerateContent answers the setup turn with ReplyReady and every later turn with ReplyCorrect when the last
// integer in the message equals the secret, ReplyIncorrect otherwise.
func (s *Session) GenerateContent(ctx context.Context, input ...numguess.Input) (*numguess.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "context done", goerr.V("session_id", s.id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, goerr.New("session is closed", goerr.V("session_id", s.id))
	}

	var prompt string
	for _, in := range input {
		prompt += in.String()
	}

	reply := s.answer(prompt)
	s.messages = append(s.messages,
		numguess.Message{Role: numguess.RoleUser, Content: prompt},
		numguess.Message{Role: numguess.RoleAssistant, Content: reply},
	)
	return &numguess.Response{Texts: []string{reply}}, nil
}

func (s *Session) answer(prompt string) string {
	if !s.ready {
		s.secret = s.client.draw()
		s.ready = true
		return ReplyReady
	}

	numbers := numberPattern.FindAllString(prompt, -1)
	if len(numbers) == 0 {
		return ReplyIncorrect
	}
	guess, err := strconv.Atoi(numbers[len(numbers)-1])
	if err != nil || guess != s.secret {
		return ReplyIncorrect
	}
	return ReplyCorrect
}

// History returns the conversation so far.
func (s *Session) History() []numguess.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]numguess.Message(nil), s.messages...)
}

// Close ends the session. Calling it again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
