package numguess_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/internal"
	"github.com/m-mizutani/numguess/mock"
	"github.com/m-mizutani/numguess/trace"
	"go.uber.org/goleak"
)

// collect records every TrialReport.
type collect struct {
	mu      sync.Mutex
	reports []*numguess.TrialReport
}

func (c *collect) hook(ctx context.Context, report *numguess.TrialReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
}

func checkInvariant(t *testing.T, result *numguess.Result) {
	t.Helper()
	gt.N(t, result.TrialsCompleted).LessOrEqual(result.TrialsRequested)
	gt.Equal(t, result.Matched()+result.TotalAnomalies(), result.TrialsCompleted)
}

func TestExperimentAlwaysCorrectOnSeven(t *testing.T) {
	var c collect
	client := newClient(func(n int) responder { return answerOn(7) })

	exp := numguess.New(client, numguess.WithTrialHook(c.hook), numguess.WithSequencer(numguess.NewSequencer(1)))
	result, err := exp.Run(context.Background(), 100, numguess.DefaultRange())
	gt.NoError(t, err)
	checkInvariant(t, result)

	gt.Equal(t, result.Status, numguess.StatusCompleted)
	gt.Equal(t, result.TrialsCompleted, 100)
	gt.Equal(t, result.TotalAnomalies(), 0)

	want := map[int]int{}
	for _, report := range c.reports {
		want[slices.Index(report.Sequence, 7)+1]++
	}
	gt.Equal(t, result.Counts, want)
	gt.A(t, c.reports).Length(100)
}

func TestExperimentAlwaysIncorrect(t *testing.T) {
	client := newClient(func(n int) responder { return alwaysIncorrect })

	result, err := numguess.New(client).Run(context.Background(), 100, numguess.DefaultRange())
	gt.NoError(t, err)
	checkInvariant(t, result)

	gt.Equal(t, result.Anomalies[numguess.AnomalyNoMatch], 100)
	gt.Equal(t, len(result.Counts), 0)
}

func TestExperimentMalformedFirstGuess(t *testing.T) {
	client := newClient(func(n int) responder {
		return func(prompt string) (string, error) {
			if _, ok := guessOf(prompt); ok {
				return "🤷", nil
			}
			return ack, nil
		}
	})

	result, err := numguess.New(client).Run(context.Background(), 100, numguess.DefaultRange())
	gt.NoError(t, err)
	checkInvariant(t, result)

	gt.Equal(t, result.Anomalies[numguess.AnomalyMalformed], 100)
	gt.Equal(t, len(result.Counts), 0)
}

func TestExperimentOddTrialsFail(t *testing.T) {
	var c collect
	client := newClient(func(n int) responder {
		if n%2 == 1 {
			return func(prompt string) (string, error) {
				return "", goerr.New("connection reset", goerr.Tag(numguess.TagTransient))
			}
		}
		return answerOn(7)
	})

	exp := numguess.New(client,
		numguess.WithTrialHook(c.hook),
		numguess.WithDriverOptions(numguess.WithRetryPolicy(fastPolicy(3))),
		numguess.WithLogger(internal.TestLogger()),
	)
	result, err := exp.Run(context.Background(), 100, numguess.DefaultRange())
	gt.NoError(t, err)
	checkInvariant(t, result)

	gt.Equal(t, result.TrialsCompleted, 100)
	gt.Equal(t, result.Anomalies[numguess.AnomalyConversationFailure], 50)
	gt.Equal(t, result.Matched(), 50)

	for _, report := range c.reports {
		if report.Number%2 == 1 {
			gt.Equal(t, report.Outcome, numguess.Anomalous(numguess.AnomalyConversationFailure))
			gt.True(t, errors.Is(report.Err, numguess.ErrConversationFailure))
			gt.True(t, goerr.HasTag(report.Err, numguess.TagTransportExhausted))
		} else {
			gt.True(t, report.Outcome.IsMatched())
			gt.NoError(t, report.Err)
		}
	}
}

func TestExperimentInvalidInput(t *testing.T) {
	client := &mock.LLMClientMock{}
	exp := numguess.New(client)

	_, err := exp.Run(context.Background(), 0, numguess.DefaultRange())
	gt.True(t, errors.Is(err, numguess.ErrInvalidTrialCount))

	_, err = exp.Run(context.Background(), 10, numguess.Range{Low: 10, High: 1})
	gt.True(t, errors.Is(err, numguess.ErrInvalidRange))

	gt.A(t, client.NewSessionCalls()).Length(0)
}

func TestExperimentConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	const limit = 4
	var inFlight, peak atomic.Int64
	var rngMu sync.Mutex
	rng := rand.New(rand.NewPCG(1, 2))

	client := &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}

			rngMu.Lock()
			target := rng.IntN(12) + 1 // sometimes outside the range
			mode := rng.IntN(10)
			rngMu.Unlock()

			session := newSession(func(prompt string) (string, error) {
				time.Sleep(time.Millisecond)
				switch mode {
				case 0:
					return "", errors.New("boom")
				case 1:
					return "maybe", nil
				}
				return answerOn(target)(prompt)
			})
			session.CloseFunc = func(ctx context.Context) error {
				inFlight.Add(-1)
				return nil
			}
			return session, nil
		},
	}

	exp := numguess.New(client, numguess.WithConcurrency(limit))
	result, err := exp.Run(context.Background(), 200, numguess.DefaultRange())
	gt.NoError(t, err)
	checkInvariant(t, result)

	gt.Equal(t, result.TrialsCompleted, 200)
	gt.N(t, int(peak.Load())).LessOrEqual(limit)
	gt.Equal(t, inFlight.Load(), int64(0))
}

func TestExperimentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient(func(n int) responder { return answerOn(3) })
	exp := numguess.New(client, numguess.WithTrialHook(func(ctx context.Context, report *numguess.TrialReport) {
		if report.Number == 3 {
			cancel()
		}
	}))

	result, err := exp.Run(ctx, 10, numguess.DefaultRange())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.Canceled))
	checkInvariant(t, result)

	gt.Equal(t, result.Status, numguess.StatusCancelled)
	gt.Equal(t, result.TrialsRequested, 10)
	gt.Equal(t, result.TrialsCompleted, 3)
	gt.Equal(t, result.Matched(), 3)
}

func TestExperimentFailureLimit(t *testing.T) {
	client := &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, options ...numguess.SessionOption) (numguess.Session, error) {
			return nil, errors.New("invalid api key")
		},
	}

	exp := numguess.New(client, numguess.WithFailureLimit(3), numguess.WithLogger(internal.TestLogger()))
	result, err := exp.Run(context.Background(), 10, numguess.DefaultRange())
	gt.True(t, errors.Is(err, numguess.ErrExperimentAborted))
	checkInvariant(t, result)

	gt.Equal(t, result.Status, numguess.StatusAborted)
	gt.Equal(t, result.TrialsCompleted, 3)
	gt.Equal(t, result.Anomalies[numguess.AnomalyConversationFailure], 3)
	gt.A(t, client.NewSessionCalls()).Length(3)
}

func TestExperimentFailureLimitResetsOnSuccess(t *testing.T) {
	// every third trial fails, so two failures never happen in a row
	client := newClient(func(n int) responder {
		if n%3 == 0 {
			return func(prompt string) (string, error) {
				return "", errors.New("bad request")
			}
		}
		return answerOn(1)
	})

	result, err := numguess.New(client, numguess.WithFailureLimit(2)).Run(context.Background(), 30, numguess.DefaultRange())
	gt.NoError(t, err)
	gt.Equal(t, result.Status, numguess.StatusCompleted)
	gt.Equal(t, result.Anomalies[numguess.AnomalyConversationFailure], 10)
	gt.Equal(t, result.Matched(), 20)
}

func TestExperimentSavesTraces(t *testing.T) {
	dir := t.TempDir()
	repo := trace.NewFileRepository(dir)
	var c collect

	client := newClient(func(n int) responder { return answerOn(5) })
	exp := numguess.New(client,
		numguess.WithTraceRepository(repo),
		numguess.WithTrialHook(c.hook),
		numguess.WithMetadata(numguess.Metadata{Provider: "control", Model: "uniform"}),
	)

	_, err := exp.Run(context.Background(), 3, numguess.DefaultRange())
	gt.NoError(t, err)
	gt.A(t, c.reports).Length(3)

	for _, report := range c.reports {
		tr, err := repo.Load(context.Background(), report.TrialID)
		gt.NoError(t, err)
		gt.Equal(t, tr.TrialNumber, report.Number)
		gt.Equal(t, tr.Sequence, report.Sequence)
		gt.Equal(t, tr.Outcome, report.Outcome.String())
		gt.Equal(t, tr.GuessIndex, slices.Index(report.Sequence, 5)+1)
		gt.Equal(t, tr.Metadata.Provider, "control")
		gt.A(t, tr.Turns).Length(2 + 2*tr.GuessIndex)
		gt.Equal(t, tr.Verdicts[len(tr.Verdicts)-1], "correct")
	}
}
