package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
)

// Config groups the runtime settings for the bus, the boundary guard and the
// email adapter. Values are read from the environment by Load.
type Config struct {
	ServiceName string `env:"OPSFLOW_SERVICE_NAME" envDefault:"opsflow"`
	LogLevel    string `env:"OPSFLOW_LOG_LEVEL" envDefault:"info"`
	// LogFormat is "text" or "json".
	LogFormat string `env:"OPSFLOW_LOG_FORMAT" envDefault:"text"`

	// BusBuffer is the output channel buffer of the in-process pub/sub.
	BusBuffer        int64         `env:"OPSFLOW_BUS_BUFFER" envDefault:"64"`
	BusCloseTimeout  time.Duration `env:"OPSFLOW_BUS_CLOSE_TIMEOUT" envDefault:"10s"`
	FailureRetention int           `env:"OPSFLOW_FAILURE_RETENTION" envDefault:"10000"`
	// DropFailedTraces skips dispatch for traces already marked failed. When
	// false, trace failure is advisory.
	DropFailedTraces bool `env:"OPSFLOW_DROP_FAILED_TRACES" envDefault:"false"`

	MetricsEnabled bool `env:"OPSFLOW_METRICS_ENABLED" envDefault:"false"`
	MetricsPort    int  `env:"OPSFLOW_METRICS_PORT" envDefault:"9090"`

	WebUIEnabled bool `env:"OPSFLOW_WEBUI_ENABLED" envDefault:"false"`
	// WebUIPort defaults to 8081.
	WebUIPort int `env:"OPSFLOW_WEBUI_PORT" envDefault:"8081"`
	// WebUICORSAllowedOrigins specifies allowed origins for CORS. Use "*" for development.
	// Empty disables CORS headers.
	WebUICORSAllowedOrigins []string `env:"OPSFLOW_WEBUI_CORS_ORIGINS" envSeparator:","`

	// OtelEndpoint is an OTLP/HTTP collector URL. Empty keeps tracing local.
	OtelEndpoint string `env:"OPSFLOW_OTEL_ENDPOINT"`

	Gmail GmailConfig
	Poll  PollConfig
}

// GmailConfig holds the origin credentials. Missing any secret leaves the
// adapter inert.
type GmailConfig struct {
	ClientID     string `env:"GMAIL_CLIENT_ID"`
	ClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	RefreshToken string `env:"GMAIL_REFRESH_TOKEN"`
	Query        string `env:"OPSFLOW_GMAIL_QUERY" envDefault:"label:INBOX"`
}

// Enabled reports whether all three secrets are present.
func (g GmailConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != ""
}

// Missing lists the environment variables that are unset.
func (g GmailConfig) Missing() []string {
	var missing []string
	if g.ClientID == "" {
		missing = append(missing, "GMAIL_CLIENT_ID")
	}
	if g.ClientSecret == "" {
		missing = append(missing, "GMAIL_CLIENT_SECRET")
	}
	if g.RefreshToken == "" {
		missing = append(missing, "GMAIL_REFRESH_TOKEN")
	}
	return missing
}

type PollConfig struct {
	Interval   time.Duration `env:"OPSFLOW_POLL_INTERVAL" envDefault:"5m"`
	MaxResults int64         `env:"OPSFLOW_POLL_MAX_RESULTS" envDefault:"5"`
	// DedupWindow suppresses re-publishing an origin message seen within the window.
	DedupWindow time.Duration `env:"OPSFLOW_DEDUP_WINDOW" envDefault:"24h"`
}

// Load reads the configuration from the process environment and validates it.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads the configuration from the supplied variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	return &cfg, nil
}

// Default returns the configuration obtained from an empty environment.
func Default() *Config {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) String() string {
	copy := c
	copy.Gmail.ClientSecret = redact(copy.Gmail.ClientSecret)
	copy.Gmail.RefreshToken = redact(copy.Gmail.RefreshToken)
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}

// Validate checks ranges and returns every problem joined into one error.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateBus()...)
	errs = append(errs, c.validatePoll()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateBus() []error {
	var errs []error
	if c.BusBuffer < 0 {
		errs = append(errs, errors.New("bus: buffer cannot be negative"))
	}
	if c.BusCloseTimeout < 0 {
		errs = append(errs, errors.New("bus: close timeout cannot be negative"))
	}
	if c.FailureRetention <= 0 {
		errs = append(errs, fmt.Errorf("boundary: failure retention must be positive, got %d", c.FailureRetention))
	}
	return errs
}

func (c *Config) validatePoll() []error {
	var errs []error
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll: interval must be positive"))
	}
	if c.Poll.MaxResults <= 0 {
		errs = append(errs, errors.New("poll: max results must be positive"))
	}
	if c.Poll.DedupWindow < 0 {
		errs = append(errs, errors.New("poll: dedup window cannot be negative"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.WebUIPort < 0 || c.WebUIPort > 65535 {
		errs = append(errs, fmt.Errorf("webui: invalid port %d", c.WebUIPort))
	}
	return errs
}
