package numguess

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess/retry"
)

// DefaultCallTimeout bounds a single call to the model.
const DefaultCallTimeout = 60 * time.Second

// Conversation is what one trial exchanged with the model.
type Conversation struct {
	// Verdicts holds one verdict per answered guess, in guess order.
	Verdicts []Verdict
	// Exhausted is true when every guess was answered and none was Correct.
	Exhausted bool
	// Transcript is the full exchange including the setup turn and correction turns.
	Transcript []Message
}

// Driver plays one game per Drive call: it opens a fresh session, asks the model to pick a number, then sends
// guesses in order until the model says Correct, the sequence runs out, or a reply cannot be classified.
type Driver struct {
	client         LLMClient
	prompts        *Prompts
	vocabulary     Vocabulary
	policy         retry.Policy
	callTimeout    time.Duration
	corrections    int
	sessionOptions []SessionOption
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPrompts replaces the prompts sent to the model.
func WithPrompts(prompts *Prompts) DriverOption {
	return func(d *Driver) {
		d.prompts = prompts
	}
}

// WithVocabulary replaces the phrases used to classify replies. It should match the language of the prompts.
func WithVocabulary(v Vocabulary) DriverOption {
	return func(d *Driver) {
		d.vocabulary = v
	}
}

// WithRetryPolicy sets the retry policy applied to each model call. If the policy has no Retryable function,
// IsTransient is used.
func WithRetryPolicy(p retry.Policy) DriverOption {
	return func(d *Driver) {
		d.policy = p
	}
}

// WithCallTimeout sets the timeout of a single model call. Default is DefaultCallTimeout.
func WithCallTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		d.callTimeout = timeout
	}
}

// WithCorrections allows up to n reminder prompts after a reply that could not be classified, before the reply is
// recorded as Malformed. Default is 0: the first such reply ends the trial.
func WithCorrections(n int) DriverOption {
	return func(d *Driver) {
		d.corrections = n
	}
}

// WithSessionOptions sets options passed to LLMClient.NewSession for every trial.
func WithSessionOptions(options ...SessionOption) DriverOption {
	return func(d *Driver) {
		d.sessionOptions = append(d.sessionOptions, options...)
	}
}

// NewDriver creates a Driver for the client.
func NewDriver(client LLMClient, options ...DriverOption) *Driver {
	d := &Driver{
		client:      client,
		prompts:     DefaultPrompts(),
		vocabulary:  DefaultVocabulary(),
		policy:      retry.DefaultPolicy(),
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range options {
		opt(d)
	}

	if d.policy.Retryable == nil {
		d.policy.Retryable = IsTransient
	}
	if d.corrections < 0 {
		d.corrections = 0
	}

	return d
}

// Drive runs one game over seq. On infrastructure failure the returned error wraps ErrConversationFailure and the
// returned Conversation holds what was exchanged before the failure. The session is closed on every path.
func (d *Driver) Drive(ctx context.Context, r Range, seq []int) (*Conversation, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	logger := LoggerFromContext(ctx)

	session, err := retry.Do(ctx, d.policy, func(ctx context.Context, attempt int) (Session, error) {
		return d.client.NewSession(ctx, d.sessionOptions...)
	})
	if err != nil {
		return nil, conversationFailure(err, "failed to create session")
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			logger.Warn("failed to close session", slog.Any("error", err))
		}
	}()

	conv := &Conversation{}

	setup, err := d.prompts.Setup(r)
	if err != nil {
		return conv, conversationFailure(err, "failed to build setup prompt")
	}
	ack, err := d.send(ctx, session, conv, setup)
	if err != nil {
		return conv, conversationFailure(err, "setup turn failed", goerr.V("range", r.String()))
	}
	logger.Debug("model acknowledged setup", slog.String("reply", ack))

	for i, guess := range seq {
		verdict, err := d.ask(ctx, session, conv, r, guess)
		if err != nil {
			return conv, conversationFailure(err, "guess turn failed",
				goerr.V("guess", guess),
				goerr.V("position", i+1),
			)
		}
		conv.Verdicts = append(conv.Verdicts, verdict)

		if verdict != VerdictIncorrect {
			return conv, nil
		}
	}

	conv.Exhausted = true
	return conv, nil
}

func (d *Driver) ask(ctx context.Context, session Session, conv *Conversation, r Range, guess int) (Verdict, error) {
	msg, err := d.prompts.Guess(r, guess)
	if err != nil {
		return VerdictMalformed, err
	}
	reply, err := d.send(ctx, session, conv, msg)
	if err != nil {
		return VerdictMalformed, err
	}
	verdict := d.vocabulary.Parse(reply)

	for n := 0; verdict == VerdictMalformed && n < d.corrections; n++ {
		LoggerFromContext(ctx).Debug("reply not classified, sending correction",
			slog.Int("guess", guess),
			slog.String("reply", reply),
		)
		msg, err := d.prompts.Correction(r, guess)
		if err != nil {
			return VerdictMalformed, err
		}
		if reply, err = d.send(ctx, session, conv, msg); err != nil {
			return VerdictMalformed, err
		}
		verdict = d.vocabulary.Parse(reply)
	}

	return verdict, nil
}

func (d *Driver) send(ctx context.Context, session Session, conv *Conversation, msg string) (string, error) {
	logger := LoggerFromContext(ctx)

	resp, err := retry.Do(ctx, d.policy, func(ctx context.Context, attempt int) (*Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		resp, err := session.GenerateContent(callCtx, Text(msg))
		if err != nil {
			logger.Debug("model call failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return nil, err
		}
		if !resp.HasData() {
			return nil, goerr.Wrap(ErrEmptyResponse, "model returned no text", goerr.V("attempt", attempt))
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}

	reply := resp.Text()
	conv.Transcript = append(conv.Transcript,
		Message{Role: RoleUser, Content: msg},
		Message{Role: RoleAssistant, Content: reply},
	)
	logger.Debug("model turn", slog.String("message", msg), slog.String("reply", reply))

	return reply, nil
}

func conversationFailure(err error, msg string, options ...goerr.Option) error {
	if goerr.HasTag(err, retry.TagExhausted) {
		options = append(options, goerr.Tag(TagTransportExhausted))
	}
	return goerr.Wrap(fmt.Errorf("%w: %w", ErrConversationFailure, err), msg, options...)
}
