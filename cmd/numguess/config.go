package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/retry"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	providerOpenAI  = "openai"
	providerClaude  = "claude"
	providerGemini  = "gemini"
	providerControl = "control"
)

// config is the settings of one run. It is read from the YAML file given by --config and then overridden by
// every flag the user set explicitly.
type config struct {
	Provider     string            `yaml:"provider"`
	Model        string            `yaml:"model"`
	Trials       int               `yaml:"trials"`
	Low          int               `yaml:"low"`
	High         int               `yaml:"high"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	Concurrency  int               `yaml:"concurrency"`
	Corrections  int               `yaml:"corrections"`
	Seed         uint64            `yaml:"seed"`
	FailureLimit int               `yaml:"failure_limit"`
	Output       string            `yaml:"output"`
	TraceDir     string            `yaml:"trace_dir"`
	MetricsAddr  string            `yaml:"metrics_addr"`
	Labels       map[string]string `yaml:"labels"`

	Gemini struct {
		Project  string `yaml:"project"`
		Location string `yaml:"location"`
	} `yaml:"gemini"`

	Prompts    *numguess.PromptTemplates `yaml:"prompts"`
	Vocabulary *numguess.Vocabulary      `yaml:"vocabulary"`

	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
}

func defaultConfig() config {
	return config{
		Provider:    providerControl,
		Trials:      100,
		Low:         numguess.DefaultLow,
		High:        numguess.DefaultHigh,
		Timeout:     numguess.DefaultCallTimeout,
		MaxRetries:  retry.DefaultMaxAttempts - 1,
		Concurrency: 1,
		Output:      "results",
	}
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}
	return cfg, nil
}

// resolveConfig builds the config of the run command: defaults, then the --config file, then flags.
func resolveConfig(cmd *cli.Command) (config, error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	cfg.applyFlags(cmd)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags set on the command line or through their environment variables.
func (cfg *config) applyFlags(cmd *cli.Command) {
	setString := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if cmd.IsSet(name) {
			*dst = cmd.Int(name)
		}
	}

	setString("provider", &cfg.Provider)
	setString("model", &cfg.Model)
	setInt("trials", &cfg.Trials)
	setInt("low", &cfg.Low)
	setInt("high", &cfg.High)
	setInt("max-retries", &cfg.MaxRetries)
	setInt("concurrency", &cfg.Concurrency)
	setInt("corrections", &cfg.Corrections)
	setInt("failure-limit", &cfg.FailureLimit)
	setString("output", &cfg.Output)
	setString("trace-dir", &cfg.TraceDir)
	setString("metrics-addr", &cfg.MetricsAddr)
	setString("gemini-project", &cfg.Gemini.Project)
	setString("gemini-location", &cfg.Gemini.Location)

	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Uint64("seed")
	}
	if cmd.IsSet("label") {
		if cfg.Labels == nil {
			cfg.Labels = make(map[string]string)
		}
		for k, v := range cmd.StringMap("label") {
			cfg.Labels[k] = v
		}
	}

	cfg.OpenAIAPIKey = cmd.String("openai-api-key")
	cfg.AnthropicAPIKey = cmd.String("anthropic-api-key")
	cfg.GoogleAPIKey = cmd.String("google-api-key")
}

// normalizeProvider maps the accepted aliases to the canonical provider name.
func normalizeProvider(name string) string {
	switch name {
	case "anthropic":
		return providerClaude
	case "google":
		return providerGemini
	default:
		return name
	}
}

func (cfg *config) validate() error {
	cfg.Provider = normalizeProvider(cfg.Provider)
	switch cfg.Provider {
	case providerOpenAI, providerClaude, providerGemini, providerControl:
	default:
		return goerr.New("unknown provider", goerr.V("provider", cfg.Provider))
	}

	if cfg.Trials <= 0 {
		return goerr.Wrap(numguess.ErrInvalidTrialCount, "trials must be positive", goerr.V("trials", cfg.Trials))
	}
	if _, err := numguess.NewRange(cfg.Low, cfg.High); err != nil {
		return err
	}
	if cfg.Timeout <= 0 {
		return goerr.New("timeout must be positive", goerr.V("timeout", cfg.Timeout))
	}
	if cfg.MaxRetries < 0 {
		return goerr.New("max-retries must not be negative", goerr.V("max_retries", cfg.MaxRetries))
	}
	if cfg.Concurrency <= 0 {
		return goerr.New("concurrency must be positive", goerr.V("concurrency", cfg.Concurrency))
	}
	if cfg.Corrections < 0 {
		return goerr.New("corrections must not be negative", goerr.V("corrections", cfg.Corrections))
	}
	return nil
}

func (cfg *config) rangeOf() numguess.Range {
	return numguess.Range{Low: cfg.Low, High: cfg.High}
}

// retryPolicy turns --max-retries into the number of attempts of the default backoff.
func (cfg *config) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.MaxRetries + 1
	return p
}

// driverOptions builds the conversation settings, replacing the built-in prompts and vocabulary with those of
// the config file when present.
func (cfg *config) driverOptions() ([]numguess.DriverOption, error) {
	options := []numguess.DriverOption{
		numguess.WithCallTimeout(cfg.Timeout),
		numguess.WithRetryPolicy(cfg.retryPolicy()),
		numguess.WithCorrections(cfg.Corrections),
	}

	if cfg.Prompts != nil {
		prompts, err := numguess.NewPrompts(*cfg.Prompts)
		if err != nil {
			return nil, err
		}
		options = append(options, numguess.WithPrompts(prompts))
	}

	if cfg.Vocabulary != nil {
		options = append(options, numguess.WithVocabulary(*cfg.Vocabulary))
	}

	return options, nil
}
