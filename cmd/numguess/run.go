package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/metrics"
	"github.com/m-mizutani/numguess/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the guessing experiment against a model and save the distribution of match positions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Sources: cli.EnvVars("NUMGUESS_CONFIG"),
				Usage:   "YAML config file. Flags override its values",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Value:   providerControl,
				Sources: cli.EnvVars("NUMGUESS_PROVIDER"),
				Usage:   "Model provider (openai, claude, gemini, control)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Sources: cli.EnvVars("NUMGUESS_MODEL"),
				Usage:   "Model name. Default depends on the provider",
			},
			&cli.IntFlag{
				Name:    "trials",
				Aliases: []string{"n"},
				Value:   100,
				Sources: cli.EnvVars("NUMGUESS_TRIALS"),
				Usage:   "Number of trials",
			},
			&cli.IntFlag{
				Name:    "low",
				Value:   numguess.DefaultLow,
				Sources: cli.EnvVars("NUMGUESS_LOW"),
				Usage:   "Lowest number of the range",
			},
			&cli.IntFlag{
				Name:    "high",
				Value:   numguess.DefaultHigh,
				Sources: cli.EnvVars("NUMGUESS_HIGH"),
				Usage:   "Highest number of the range",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   numguess.DefaultCallTimeout,
				Sources: cli.EnvVars("NUMGUESS_TIMEOUT"),
				Usage:   "Timeout of a single model call",
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Value:   defaultConfig().MaxRetries,
				Sources: cli.EnvVars("NUMGUESS_MAX_RETRIES"),
				Usage:   "Retries of a model call after a transient failure",
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Value:   1,
				Sources: cli.EnvVars("NUMGUESS_CONCURRENCY"),
				Usage:   "Number of trials played at the same time",
			},
			&cli.IntFlag{
				Name:    "corrections",
				Sources: cli.EnvVars("NUMGUESS_CORRECTIONS"),
				Usage:   "Reminders sent after an unclassifiable reply before it counts as malformed",
			},
			&cli.Uint64Flag{
				Name:    "seed",
				Sources: cli.EnvVars("NUMGUESS_SEED"),
				Usage:   "Seed of the guess sequences (and of the control provider). 0 means random",
			},
			&cli.IntFlag{
				Name:    "failure-limit",
				Sources: cli.EnvVars("NUMGUESS_FAILURE_LIMIT"),
				Usage:   "Abort after this many consecutive conversation failures. 0 disables",
			},
			&cli.StringMapFlag{
				Name:  "label",
				Usage: "Label saved with the result (key=value)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "results",
				Sources: cli.EnvVars("NUMGUESS_OUTPUT"),
				Usage:   "Directory to write the result file to",
			},
			&cli.StringFlag{
				Name:    "trace-dir",
				Sources: cli.EnvVars("NUMGUESS_TRACE_DIR"),
				Usage:   "Directory to write one trace file per trial to",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Sources: cli.EnvVars("NUMGUESS_METRICS_ADDR"),
				Usage:   "Serve Prometheus metrics on this address while running (e.g. :9090)",
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
				Usage:   "OpenAI API key",
			},
			&cli.StringFlag{
				Name:    "anthropic-api-key",
				Sources: cli.EnvVars("ANTHROPIC_API_KEY"),
				Usage:   "Anthropic API key",
			},
			&cli.StringFlag{
				Name:    "google-api-key",
				Sources: cli.EnvVars("GOOGLE_API_KEY", "GEMINI_API_KEY"),
				Usage:   "Gemini API key",
			},
			&cli.StringFlag{
				Name:    "gemini-project",
				Sources: cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
				Usage:   "Google Cloud project to use Gemini through Vertex AI",
			},
			&cli.StringFlag{
				Name:    "gemini-location",
				Sources: cli.EnvVars("GOOGLE_CLOUD_LOCATION"),
				Usage:   "Vertex AI location",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("NUMGUESS_LOG_LEVEL"),
				Usage:   "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Sources: cli.EnvVars("NUMGUESS_LOG_FORMAT"),
				Usage:   "Log format (text, json)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := interruptContext(ctx)
			defer stop()

			return runExperiment(ctx, cmd, &cfg, logger)
		},
	}
}

// interruptContext returns a context cancelled by the first SIGINT or SIGTERM. The handler is released right
// after, so a second signal terminates the process while running trials are still finishing.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		if parent.Err() == nil {
			slog.Warn("interrupted, waiting for running trials; interrupt again to quit")
		}
	}()
	return ctx, stop
}

func runExperiment(ctx context.Context, cmd *cli.Command, cfg *config, logger *slog.Logger) error {
	client, err := newModelClient(ctx, cfg)
	if err != nil {
		return err
	}

	driverOptions, err := cfg.driverOptions()
	if err != nil {
		return err
	}

	r := cfg.rangeOf()
	meta := numguess.Metadata{
		Provider: cfg.Provider,
		Model:    client.Model(),
		Labels:   cfg.Labels,
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, meta, r)

	options := []numguess.Option{
		numguess.WithConcurrency(cfg.Concurrency),
		numguess.WithFailureLimit(cfg.FailureLimit),
		numguess.WithDriverOptions(driverOptions...),
		numguess.WithTrialHook(m.Hook()),
		numguess.WithMetadata(meta),
		numguess.WithLogger(logger),
	}
	if cfg.Seed != 0 {
		options = append(options, numguess.WithSequencer(numguess.NewSequencer(cfg.Seed)))
	}

	serverOptions := []serverOption{withGatherer(reg), withResultDir(cfg.Output)}
	if cfg.TraceDir != "" {
		repo := trace.NewFileRepository(cfg.TraceDir)
		options = append(options, numguess.WithTraceRepository(repo))
		serverOptions = append(serverOptions, withTraces(repo))
	}

	if cfg.MetricsAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		srv := newServer(append(serverOptions, withAddr(cfg.MetricsAddr))...)
		go func() {
			if err := srv.start(srvCtx); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	logger.Info("running experiment",
		slog.String("provider", meta.Provider),
		slog.String("model", meta.Model),
		slog.Int("trials", cfg.Trials),
		slog.String("range", r.String()),
	)

	result, runErr := numguess.New(client, options...).Run(ctx, cfg.Trials, r)
	if result == nil {
		return runErr
	}

	rec := result.Export(meta)
	path, err := numguess.WriteRecord(cfg.Output, rec)
	if err != nil {
		return err
	}
	logger.Info("result saved", slog.String("path", path), slog.String("status", string(result.Status)))

	if err := writeSummary(cmd.Root().Writer, filepath.Base(path), rec); err != nil {
		return err
	}

	// A partial result is saved before reporting the cancellation or abort.
	return runErr
}
