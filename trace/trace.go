// Package trace records what happened in one trial: the guess sequence, every turn exchanged with the model, the
// verdicts and the outcome.
package trace

import (
	"time"
)

// Trace represents the full record of a single trial.
type Trace struct {
	TraceID     string    `json:"trace_id"`
	TrialNumber int       `json:"trial_number"`
	Range       Range     `json:"range"`
	Sequence    []int     `json:"sequence"`
	Turns       []Turn    `json:"turns"`
	Verdicts    []string  `json:"verdicts"`
	Outcome     string    `json:"outcome"`
	GuessIndex  int       `json:"guess_index,omitempty"`
	Error       string    `json:"error,omitempty"`
	Metadata    Metadata  `json:"metadata"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Range is the guess range of the trial.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Turn is one message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata holds metadata for a trace.
type Metadata struct {
	Provider string            `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Duration returns the wall time of the trial.
func (t *Trace) Duration() time.Duration {
	return t.EndedAt.Sub(t.StartedAt)
}
