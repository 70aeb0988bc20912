package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/drblury/opsflow/internal/app"
	configpkg "github.com/drblury/opsflow/internal/runtime/config"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
	"github.com/drblury/opsflow/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "opsflow",
	Short: "Lawful email ingestion pipeline",
	Long: `opsflow reads a mailbox, hardens every message into an intake event and
routes it through kind-scoped pipeline stages. Any stage that fails marks the
event's trace as failed instead of crashing the process.

Configuration is read from OPSFLOW_* environment variables and the
GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET and GMAIL_REFRESH_TOKEN secrets. Without
the secrets the pipeline starts inert.`,
	SilenceUsage: true,
}

type globalFlags struct {
	logLevel  string
	logFormat string
}

func main() {
	flags := &globalFlags{}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(runCmd(flags))
	rootCmd.AddCommand(pollCmd(flags))
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

type runFlags struct {
	interval   time.Duration
	maxResults int64
	webui      bool
	metrics    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "poll interval, e.g. 5m")
	cmd.Flags().Int64Var(&f.maxResults, "max-results", 0, "messages listed per poll")
	cmd.Flags().BoolVar(&f.webui, "webui", false, "serve the introspection API")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "serve Prometheus metrics")
}

// apply copies the flags the user set onto conf and validates the result.
func (f *runFlags) apply(cmd *cobra.Command, conf *configpkg.Config) error {
	if cmd.Flags().Changed("interval") {
		conf.Poll.Interval = f.interval
	}
	if cmd.Flags().Changed("max-results") {
		conf.Poll.MaxResults = f.maxResults
	}
	if cmd.Flags().Changed("webui") {
		conf.WebUIEnabled = f.webui
	}
	if cmd.Flags().Changed("metrics") {
		conf.MetricsEnabled = f.metrics
	}
	return conf.Validate()
}

func runCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and poll the mailbox until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(conf *configpkg.Config) error {
				return rf.apply(cmd, conf)
			}, func(ctx context.Context, a *app.App) error {
				err := a.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func pollCmd(flags *globalFlags) *cobra.Command {
	var (
		maxResults int64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll, wait for the pipeline to settle and print the outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, nil, func(ctx context.Context, a *app.App) error {
				n := a.Conf.Poll.MaxResults
				if cmd.Flags().Changed("max-results") {
					n = maxResults
				}
				summary, err := a.PollOnce(ctx, n)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := sonic.ConfigStd.NewEncoder(out)
					return enc.Encode(map[string]any{
						"summary":  summary,
						"failures": a.Guard.Failures(),
					})
				}
				app.RenderSummary(out, summary)
				app.RenderFailures(out, a.Guard.Failures())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&maxResults, "max-results", 0, "messages listed in this poll")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "opsflow", version)
		},
	}
}

// withApp loads configuration, applies flag overrides, builds the logger,
// tracing and the app, then hands the app to fn.
func withApp(cmd *cobra.Command, flags *globalFlags, override func(*configpkg.Config) error, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()

	conf, err := configpkg.Load()
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		conf.LogFormat = flags.logFormat
	}
	if override != nil {
		if err := override(conf); err != nil {
			return err
		}
	}

	slogger, err := loggingpkg.NewSlogLogger(conf.LogLevel, conf.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	log := loggingpkg.NewSlogServiceLogger(slogger).With(loggingpkg.LogFields{"service": conf.ServiceName})

	tp, shutdown, err := telemetry.Setup(ctx, conf.ServiceName, conf.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("Failed to flush traces", err, nil)
		}
	}()

	a, err := app.New(ctx, conf, log, app.Options{TracerProvider: tp})
	if err != nil {
		return err
	}
	return fn(ctx, a)
}
