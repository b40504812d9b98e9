package numguess

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Status tells how an experiment run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusAborted   Status = "aborted"
)

// Result is the finalized outcome of an experiment. It is not modified after Run returns.
//
// Invariant: the sum of Counts plus the sum of Anomalies equals TrialsCompleted, and TrialsCompleted is at most
// TrialsRequested.
type Result struct {
	Range           Range
	Counts          map[int]int
	Anomalies       map[AnomalyReason]int
	TrialsRequested int
	TrialsCompleted int
	Status          Status
	StartedAt       time.Time
	EndedAt         time.Time
}

// Matched is the number of trials that ended with a match.
func (r *Result) Matched() int {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	return total
}

// TotalAnomalies is the number of trials that ended without a match.
func (r *Result) TotalAnomalies() int {
	total := 0
	for _, c := range r.Anomalies {
		total += c
	}
	return total
}

// Histogram returns the match counts by guess index; element 0 is guess index 1.
func (r *Result) Histogram() []int {
	hist := make([]int, r.Range.Size())
	for idx, c := range r.Counts {
		if 1 <= idx && idx <= len(hist) {
			hist[idx-1] = c
		}
	}
	return hist
}

// Percentage returns the share of completed trials matched at each guess index, in percent.
func (r *Result) Percentage() []float64 {
	hist := r.Histogram()
	pct := make([]float64, len(hist))
	if r.TrialsCompleted == 0 {
		return pct
	}
	for i, c := range hist {
		pct[i] = float64(c) / float64(r.TrialsCompleted) * 100
	}
	return pct
}

// CumulativePercentage returns the share of completed trials matched at or before each guess index, in percent.
func (r *Result) CumulativePercentage() []float64 {
	pct := r.Percentage()
	cum := make([]float64, len(pct))
	sum := 0.0
	for i, p := range pct {
		sum += p
		cum[i] = sum
	}
	return cum
}

// tally is the running state of one Run. fold is atomic per trial.
type tally struct {
	mu                  sync.Mutex
	result              *Result
	consecutiveFailures int
}

func newTally(r Range, requested int) *tally {
	return &tally{
		result: &Result{
			Range:           r,
			Counts:          make(map[int]int),
			Anomalies:       make(map[AnomalyReason]int),
			TrialsRequested: requested,
			StartedAt:       time.Now(),
		},
	}
}

// fold adds the trial outcome and calls the hooks while holding the lock, so hooks observe trials one at a time.
// It returns the number of consecutive conversation failures including this trial.
func (t *tally) fold(ctx context.Context, report *TrialReport, hooks []TrialHook) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := report.Outcome
	if o.IsMatched() {
		t.result.Counts[o.GuessIndex]++
	} else {
		t.result.Anomalies[o.Anomaly]++
	}
	t.result.TrialsCompleted++

	if o.Anomaly == AnomalyConversationFailure {
		t.consecutiveFailures++
	} else {
		t.consecutiveFailures = 0
	}

	for _, hook := range hooks {
		hook(ctx, report)
	}

	return t.consecutiveFailures
}

func (t *tally) finalize(status Status) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	return &Result{
		Range:           t.result.Range,
		Counts:          maps.Clone(t.result.Counts),
		Anomalies:       maps.Clone(t.result.Anomalies),
		TrialsRequested: t.result.TrialsRequested,
		TrialsCompleted: t.result.TrialsCompleted,
		Status:          status,
		StartedAt:       t.result.StartedAt,
		EndedAt:         time.Now(),
	}
}

func (t *tally) completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result.TrialsCompleted
}
