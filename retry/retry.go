// Package retry provides a bounded retry policy with exponential backoff and jitter.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// TagExhausted marks the error returned when every attempt of a Policy failed.
var TagExhausted = goerr.NewTag("retry_exhausted")

// Clock abstracts waiting between attempts so tests can run without sleeping.
type Clock interface {
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock returns a Clock backed by time.Timer.
func RealClock() Clock {
	return realClock{}
}

// Policy defines how many attempts are made and how long to wait between them.
// The wait before attempt n+1 is min(MaxDelay, InitialDelay * Factor^(n-1) * (1 + Jitter*r)) with r in [0, 1).
type Policy struct {
	// MaxAttempts is the maximum number of attempts including the first one. Values below 1 mean 1.
	MaxAttempts int
	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps every wait.
	MaxDelay time.Duration
	// Factor is the exponential factor applied to each further attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64

	// Retryable decides whether an error is worth another attempt. nil means every error is retried.
	Retryable func(error) bool
	// Clock is used to wait between attempts. nil means the real clock.
	Clock Clock
	// Rand returns values in [0, 1) for jitter. nil means math/rand/v2.
	Rand func() float64
}

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultFactor       = 2.0
	DefaultJitter       = 0.1
)

// DefaultPolicy returns 3 attempts with 500ms initial delay, factor 2, 10s cap and 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Factor:       DefaultFactor,
		Jitter:       DefaultJitter,
	}
}

// Backoff returns the wait after the given failed attempt (1-indexed) for the random value r in [0, 1).
func (p Policy) Backoff(attempt int, r float64) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = DefaultFactor
	}
	exp := math.Max(float64(attempt-1), 0)

	base := float64(p.InitialDelay) * math.Pow(factor, exp)
	total := base + base*p.Jitter*r
	if p.MaxDelay > 0 {
		total = math.Min(float64(p.MaxDelay), total)
	}
	return time.Duration(math.Round(total))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) clock() Clock {
	if p.Clock == nil {
		return realClock{}
	}
	return p.Clock
}

func (p Policy) random() float64 {
	if p.Rand == nil {
		return rand.Float64() // #nosec G404 -- jitter does not require cryptographic randomness
	}
	return p.Rand()
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts run out. fn receives the 1-indexed
// attempt number. Context cancellation is checked before each attempt and while waiting.
//
// When every attempt fails, the last error is returned wrapped and tagged with TagExhausted.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.attempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, goerr.Wrap(err, "retry cancelled", goerr.V("attempt", attempt))
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}

		if !p.retryable(err) {
			return zero, err
		}

		if attempt >= maxAttempts {
			return zero, goerr.Wrap(err, "retry budget exhausted",
				goerr.V("attempts", attempt),
				goerr.Tag(TagExhausted),
			)
		}

		if err := p.clock().Sleep(ctx, p.Backoff(attempt, p.random())); err != nil {
			return zero, goerr.Wrap(err, "retry cancelled while waiting", goerr.V("attempt", attempt))
		}
	}
}
