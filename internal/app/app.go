// Package app assembles the opsflow process: the boundary guard, the event
// bus, the publish gateway, the pipeline stages and the email adapter.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/drblury/opsflow/internal/adapters/email"
	"github.com/drblury/opsflow/internal/agents"
	"github.com/drblury/opsflow/internal/runtime"
	"github.com/drblury/opsflow/internal/runtime/boundary"
	configpkg "github.com/drblury/opsflow/internal/runtime/config"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// SystemName is printed in the startup banner.
const SystemName = "PERSONAL OPS AUTOMATION AGENT"

// ErrInert is returned by PollOnce when no message source is configured.
var ErrInert = errors.New("opsflow: no message source configured")

// Options overrides the collaborators New would otherwise build from config.
type Options struct {
	// Source replaces the Gmail source. Used by demos and tests.
	Source email.MessageSource
	// Registerer receives every Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
	// GmailOptions are appended to the Gmail client options.
	GmailOptions []option.ClientOption
}

// App is one assembled pipeline.
type App struct {
	Conf    *configpkg.Config
	Logger  loggingpkg.ServiceLogger
	Guard   *boundary.Guard
	Bus     *runtime.Bus
	Gateway *runtime.Gateway
	// Adapter is nil in inert mode.
	Adapter *email.Adapter
}

// New wires the pipeline. Missing Gmail credentials are not an error: the
// app starts without an adapter and logs that it is inert.
func New(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, opts Options) (*App, error) {
	if conf == nil {
		return nil, errors.New("opsflow: config is required")
	}
	if log == nil {
		return nil, errors.New("opsflow: logger is required")
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	guard, err := boundary.New(log,
		boundary.WithRetention(conf.FailureRetention),
		boundary.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("create boundary guard: %w", err)
	}

	deps := runtime.BusDependencies{
		MetricsRegisterer: reg,
		TracerProvider:    opts.TracerProvider,
	}
	if lvl, err := loggingpkg.ParseLevel(conf.LogLevel); err == nil && lvl <= slog.LevelDebug {
		deps.Middlewares = append(deps.Middlewares, runtime.JobHooksMiddleware(runtime.LoggingHooks(log)))
	}
	bus, err := runtime.NewBus(ctx, conf, log, guard, deps)
	if err != nil {
		return nil, fmt.Errorf("create bus: %w", err)
	}

	a := &App{Conf: conf, Logger: log, Guard: guard, Bus: bus}
	if err := a.wire(ctx, reg, opts); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, reg prometheus.Registerer, opts Options) error {
	gateway, err := runtime.NewGateway(a.Bus)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	a.Gateway = gateway

	if err := agents.RegisterStubs(a.Bus, a.Logger); err != nil {
		return fmt.Errorf("register stubs: %w", err)
	}
	if err := agents.NewClassificationAgent(a.Bus, a.Logger).Register(a.Bus); err != nil {
		return fmt.Errorf("register classification agent: %w", err)
	}

	source := opts.Source
	if source == nil {
		source, err = a.gmailSource(ctx, opts.GmailOptions)
		if errors.Is(err, email.ErrCredentialsMissing) {
			a.Logger.Warn("Gmail credentials missing. Adapter will remain inert.", loggingpkg.LogFields{
				"missing": a.Conf.Gmail.Missing(),
			})
			return nil
		}
		if err != nil {
			return err
		}
	}

	adapter, err := email.NewAdapter(source, gateway, a.Logger,
		email.WithDedupWindow(a.Conf.Poll.DedupWindow),
		email.WithRegisterer(reg),
	)
	if err != nil {
		return fmt.Errorf("create email adapter: %w", err)
	}
	a.Adapter = adapter
	return nil
}

func (a *App) gmailSource(ctx context.Context, extra []option.ClientOption) (email.MessageSource, error) {
	ts, err := email.NewTokenSource(ctx, a.Conf.Gmail)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, extra...)
	src, err := email.NewGmailSource(ctx, a.Conf.Gmail.Query, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail source: %w", err)
	}
	return src, nil
}

// Inert reports whether the app has no message source.
func (a *App) Inert() bool {
	return a.Adapter == nil
}

// Banner logs the startup lines.
func (a *App) Banner() {
	mode := "INGESTING"
	if a.Inert() {
		mode = "INERT"
	}
	a.Logger.Info("--- "+SystemName+" ---", nil)
	a.Logger.Info("Status: BOUNDARY ENFORCEMENT ACTIVE", nil)
	a.Logger.Info("Mode: "+mode, loggingpkg.LogFields{"poll_interval": a.Conf.Poll.Interval.String()})
}

// Start runs the bus in the background and waits until it accepts events.
// The returned channel yields the bus result once it stops.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	done := make(chan error, 1)
	go func() { done <- a.Bus.Run(ctx) }()

	select {
	case <-a.Bus.Running():
		return done, nil
	case err := <-done:
		if err == nil {
			err = errors.New("opsflow: bus stopped before it started")
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the bus and, unless inert, polls on the configured interval with
// the first poll immediately. It blocks until ctx is cancelled, then closes
// the bus.
func (a *App) Run(ctx context.Context) error {
	a.Banner()

	done, err := a.Start(ctx)
	if err != nil {
		_ = a.Bus.Close()
		return err
	}

	if !a.Inert() {
		go a.pollLoop(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-done:
	}

	a.Logger.Info("System shutting down lawfully.", nil)
	return errors.Join(runErr, a.Close())
}

func (a *App) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Conf.Poll.Interval)
	defer ticker.Stop()

	for {
		a.Adapter.Poll(ctx, a.Conf.Poll.MaxResults)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce starts the bus, runs one poll and waits for every resulting
// dispatch to finish before closing the bus.
func (a *App) PollOnce(ctx context.Context, maxResults int64) (email.PollSummary, error) {
	if a.Inert() {
		_ = a.Close()
		return email.PollSummary{}, ErrInert
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if _, err := a.Start(runCtx); err != nil {
		_ = a.Close()
		return email.PollSummary{}, err
	}

	summary := a.Adapter.Poll(ctx, maxResults)
	drainErr := a.Bus.Drain(ctx)
	return summary, errors.Join(drainErr, a.Close())
}

// Close stops the bus.
func (a *App) Close() error {
	return a.Bus.Close()
}
