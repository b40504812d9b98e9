package numguess

import (
	"context"
	"time"
)

// TrialReport is passed to TrialHook after each trial is folded into the result.
type TrialReport struct {
	Number   int
	TrialID  string
	Sequence []int
	Outcome  TrialOutcome
	// Conversation is nil when the session could not be created.
	Conversation *Conversation
	Err          error
	Duration     time.Duration
}

type (
	// TrialHook observes finished trials. Hooks are called one at a time in the order trials are folded and must
	// not block for long.
	TrialHook func(ctx context.Context, report *TrialReport)
)
