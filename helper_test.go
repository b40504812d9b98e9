package numguess_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/mock"
	"github.com/m-mizutani/numguess/retry"
)

// responder answers one prompt of a session.
type responder func(prompt string) (string, error)

const ack = "Okay, I have a number."

// guessOf extracts the guess of a prompt rendered from the default guess template.
func guessOf(prompt string) (int, bool) {
	var g int
	if _, err := fmt.Sscanf(prompt, "Is the number %d?", &g); err != nil {
		return 0, false
	}
	return g, true
}

// answerOn says "Correct!" only for target.
func answerOn(target int) responder {
	return func(prompt string) (string, error) {
		g, ok := guessOf(prompt)
		if !ok {
			return ack, nil
		}
		if g == target {
			return "Correct!", nil
		}
		return "Not correct.", nil
	}
}

func alwaysIncorrect(prompt string) (string, error) {
	if _, ok := guessOf(prompt); !ok {
		return ack, nil
	}
	return "No, that is not correct.", nil
}

func newSession(respond responder) *mock.SessionMock {
	var mu sync.Mutex
	var history []numguess.Message

	return &mock.SessionMock{
		GenerateContentFunc: func(ctx context.Context, input ...numguess.Input) (*numguess.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			prompt := input[0].String()
			reply, err := respond(prompt)
			if err != nil {
				return nil, err
			}

			mu.Lock()
			defer mu.Unlock()
			history = append(history,
				numguess.Message{Role: numguess.RoleUser, Content: prompt},
				numguess.Message{Role: numguess.RoleAssistant, Content: reply},
			)
			return &numguess.Response{Texts: []string{reply}}, nil
		},
		HistoryFunc: func() []numguess.Message {
			mu.Lock()
			defer mu.Unlock()
			return append([]numguess.Message(nil), history...)
		},
		CloseFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// newClient returns a client whose n-th session (1-based) answers with responderFor(n).
func newClient(responderFor func(n int) responder) *mock.LLMClientMock {
	var count atomic.Int64
	return &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
			n := int(count.Add(1))
			return newSession(responderFor(n)), nil
		},
	}
}

type noWait struct{}

func (noWait) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fastPolicy retries without sleeping.
func fastPolicy(attempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = attempts
	p.Clock = noWait{}
	return p
}
