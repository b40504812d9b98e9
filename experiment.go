package numguess

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess/trace"
	"golang.org/x/sync/errgroup"
)

// Experiment runs repeated guessing games against one LLMClient and aggregates where the model reported a match.
type Experiment struct {
	client        LLMClient
	concurrency   int
	failureLimit  int
	sequencer     *Sequencer
	driverOptions []DriverOption
	hooks         []TrialHook
	traceRepo     trace.Repository
	metadata      Metadata
	logger        *slog.Logger
}

// Option configures an Experiment.
type Option func(*Experiment)

// WithConcurrency sets the number of trials run at the same time. Default is 1.
func WithConcurrency(n int) Option {
	return func(e *Experiment) {
		e.concurrency = n
	}
}

// WithFailureLimit stops the experiment after n consecutive trials ended with a conversation failure. The run then
// returns the partial result with ErrExperimentAborted. Default is 0, which never stops.
func WithFailureLimit(n int) Option {
	return func(e *Experiment) {
		e.failureLimit = n
	}
}

// WithSequencer sets the source of guess sequences. Default draws from the global random source.
func WithSequencer(s *Sequencer) Option {
	return func(e *Experiment) {
		e.sequencer = s
	}
}

// WithDriverOptions sets options of the Driver used for every trial.
func WithDriverOptions(options ...DriverOption) Option {
	return func(e *Experiment) {
		e.driverOptions = append(e.driverOptions, options...)
	}
}

// WithTrialHook adds a hook called after each trial.
func WithTrialHook(hook TrialHook) Option {
	return func(e *Experiment) {
		e.hooks = append(e.hooks, hook)
	}
}

// WithTraceRepository saves the full record of each trial to repo.
func WithTraceRepository(repo trace.Repository) Option {
	return func(e *Experiment) {
		e.traceRepo = repo
	}
}

// WithMetadata sets the provider and model names attached to traces.
func WithMetadata(meta Metadata) Option {
	return func(e *Experiment) {
		e.metadata = meta
	}
}

// WithLogger sets the logger. Default is the logger of the context given to Run.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Experiment) {
		e.logger = logger
	}
}

// New creates an Experiment for the client.
func New(client LLMClient, options ...Option) *Experiment {
	e := &Experiment{
		client:      client,
		concurrency: 1,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

// Run plays trials games over r and returns the aggregated result.
//
// ErrInvalidTrialCount and ErrInvalidRange are returned before any trial starts. A failed trial is counted as an
// anomaly and never stops the run, unless WithFailureLimit is set. When ctx is cancelled no new trial is started,
// trials already running finish, and the partial result is returned together with an error wrapping ctx.Err().
func (e *Experiment) Run(ctx context.Context, trials int, r Range) (*Result, error) {
	if trials <= 0 {
		return nil, goerr.Wrap(ErrInvalidTrialCount, "trials must be positive", goerr.V("trials", trials))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if e.logger != nil {
		ctx = CtxWithLogger(ctx, e.logger)
	}
	logger := LoggerFromContext(ctx)
	logger.Info("experiment started",
		slog.Int("trials", trials),
		slog.String("range", r.String()),
		slog.Int("concurrency", e.concurrency),
	)

	driver := NewDriver(e.client, e.driverOptions...)
	t := newTally(r, trials)

	// Trials in flight are not interrupted by cancellation; each call is still bounded by the call timeout.
	trialCtx := context.WithoutCancel(ctx)
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var aborted atomic.Bool
	var eg errgroup.Group
	eg.SetLimit(e.concurrency)

	for n := 1; n <= trials; n++ {
		if stopCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if stopCtx.Err() != nil {
				return nil
			}
			failures := e.runTrial(trialCtx, driver, t, r, n)
			if e.failureLimit > 0 && failures >= e.failureLimit {
				aborted.Store(true)
				stop()
			}
			return nil
		})
	}
	_ = eg.Wait()

	switch {
	case aborted.Load():
		result := t.finalize(StatusAborted)
		logger.Error("experiment aborted",
			slog.Int("failure_limit", e.failureLimit),
			slog.Int("completed", result.TrialsCompleted),
		)
		return result, goerr.Wrap(ErrExperimentAborted, "too many consecutive conversation failures",
			goerr.V("failure_limit", e.failureLimit),
			goerr.V("completed", result.TrialsCompleted),
		)

	case ctx.Err() != nil && t.completed() < trials:
		result := t.finalize(StatusCancelled)
		logger.Warn("experiment cancelled", slog.Int("completed", result.TrialsCompleted))
		return result, goerr.Wrap(ctx.Err(), "experiment cancelled",
			goerr.V("completed", result.TrialsCompleted),
			goerr.V("requested", trials),
		)
	}

	result := t.finalize(StatusCompleted)
	logger.Info("experiment finished",
		slog.Int("matched", result.Matched()),
		slog.Int("anomalies", result.TotalAnomalies()),
		slog.Duration("elapsed", result.EndedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (e *Experiment) runTrial(ctx context.Context, driver *Driver, t *tally, r Range, number int) int {
	startedAt := time.Now()
	report := &TrialReport{
		Number:  number,
		TrialID: uuid.NewString(),
	}

	logger := LoggerFromContext(ctx).With(
		slog.Int("trial", number),
		slog.String("trial_id", report.TrialID),
	)
	ctx = CtxWithLogger(ctx, logger)

	report.Outcome, report.Err = e.play(ctx, driver, r, report)
	report.Duration = time.Since(startedAt)

	if report.Err != nil {
		logger.Warn("trial failed", slog.Any("error", report.Err))
	}
	logger.Info("trial finished",
		slog.String("outcome", report.Outcome.String()),
		slog.Duration("duration", report.Duration),
	)

	if e.traceRepo != nil {
		if err := e.traceRepo.Save(ctx, e.buildTrace(r, report, startedAt)); err != nil {
			logger.Warn("failed to save trace", slog.Any("error", err))
		}
	}

	return t.fold(ctx, report, e.hooks)
}

func (e *Experiment) play(ctx context.Context, driver *Driver, r Range, report *TrialReport) (TrialOutcome, error) {
	seq, err := e.sequencer.Generate(r)
	if err != nil {
		return Anomalous(AnomalyConversationFailure), err
	}
	report.Sequence = seq

	conv, err := driver.Drive(ctx, r, seq)
	report.Conversation = conv
	if err != nil {
		return Anomalous(AnomalyConversationFailure), err
	}
	return Classify(conv.Verdicts, len(seq)), nil
}

func (e *Experiment) buildTrace(r Range, report *TrialReport, startedAt time.Time) *trace.Trace {
	tr := &trace.Trace{
		TraceID:     report.TrialID,
		TrialNumber: report.Number,
		Range:       trace.Range{Low: r.Low, High: r.High},
		Sequence:    report.Sequence,
		Outcome:     report.Outcome.String(),
		GuessIndex:  report.Outcome.GuessIndex,
		Metadata: trace.Metadata{
			Provider: e.metadata.Provider,
			Model:    e.metadata.Model,
			Labels:   e.metadata.Labels,
		},
		StartedAt: startedAt,
		EndedAt:   startedAt.Add(report.Duration),
	}
	if report.Err != nil {
		tr.Error = report.Err.Error()
	}
	if conv := report.Conversation; conv != nil {
		for _, msg := range conv.Transcript {
			tr.Turns = append(tr.Turns, trace.Turn{Role: string(msg.Role), Content: msg.Content})
		}
		for _, v := range conv.Verdicts {
			tr.Verdicts = append(tr.Verdicts, v.String())
		}
	}
	return tr
}
