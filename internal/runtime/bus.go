package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/opsflow/internal/runtime/boundary"
	configpkg "github.com/drblury/opsflow/internal/runtime/config"
	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
	transportpkg "github.com/drblury/opsflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Metadata keys set on every bus message.
const (
	MetadataKeyEventKind     = "event_kind"
	MetadataKeyTraceID       = "trace_id"
	MetadataKeySchemaVersion = "schema_version"
	MetadataKeyCorrelationID = "correlation_id"
)

// TraceGuard is the failure registry the bus reports to.
type TraceGuard interface {
	FailTraceFrom(origin, traceID, reason string)
	Failed(traceID string) bool
	Failures() []boundary.Failure
}

// BusDependencies holds the optional collaborators of a Bus.
type BusDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	ErrorClassifier           ErrorClassifier
	// MetricsRegisterer receives the router and delivery metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
	// TracerProvider creates the dispatch spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Bus is the in-process, kind-partitioned event bus. One router handler per
// event kind consumes that kind's topic and fans each event out to the
// subscriptions registered for it, in registration order.
type Bus struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	guard TraceGuard

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	subsMu sync.RWMutex
	subs   map[events.Kind][]*subscription
	order  int

	queues    map[events.Kind]*kindQueue
	pending   atomic.Int64
	closing   chan struct{}
	closeOnce sync.Once

	httpServers   map[int]*chi.Mux
	httpServersMu sync.Mutex

	errorClassifier   ErrorClassifier
	load              *loadSampler
	metricsRegisterer prometheus.Registerer
	metrics           *busMetrics
	tracerProvider    trace.TracerProvider
}

// NewBus constructs a Bus. Subscribe stages on it, then call Run.
func NewBus(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, guard TraceGuard, deps BusDependencies) (*Bus, error) {
	if conf == nil {
		return nil, errors.New("opsflow: config is required")
	}
	if log == nil {
		return nil, errors.New("opsflow: logger is required")
	}
	if guard == nil {
		return nil, errspkg.ErrGuardRequired
	}

	log = log.With(loggingpkg.LogFields{"component": "bus"})
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event bus", loggingpkg.LogFields{
		"drop_failed_traces": conf.DropFailedTraces,
		"buffer":             conf.BusBuffer,
	})

	b := &Bus{
		Conf:              conf,
		Logger:            log,
		guard:             guard,
		subs:              make(map[events.Kind][]*subscription),
		queues:            make(map[events.Kind]*kindQueue),
		closing:           make(chan struct{}),
		errorClassifier:   deps.ErrorClassifier,
		metricsRegisterer: deps.MetricsRegisterer,
		tracerProvider:    deps.TracerProvider,
	}
	b.load = newLoadSampler(b.queuedEvents, b.pending.Load)
	if b.tracerProvider == nil {
		b.tracerProvider = otel.GetTracerProvider()
	}
	if b.metricsRegisterer == nil {
		b.metricsRegisterer = prometheus.DefaultRegisterer
	}
	b.metrics = newBusMetrics(b.metricsRegisterer)
	if err := b.metrics.Register(); err != nil {
		return nil, fmt.Errorf("register bus metrics: %w", err)
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	b.publisher = transport.Publisher
	b.subscriber = transport.Subscriber

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.BusCloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	b.router = router

	if err := b.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	for _, kind := range events.Kinds() {
		b.queues[kind] = newKindQueue(kind)
		b.router.AddConsumerHandler(routerHandlerName(kind), string(kind), b.subscriber, b.dispatcher(kind))
	}

	return b, nil
}

func routerHandlerName(kind events.Kind) string {
	return "dispatch." + string(kind)
}

// Run starts the router and blocks until ctx is cancelled or Close is called.
// Events published while the handlers subscribe are held until they are ready.
func (b *Bus) Run(ctx context.Context) error {
	b.StartWebUIServer()
	b.startHTTPServers(ctx)

	go func() {
		select {
		case <-b.router.Running():
			b.startPumps(ctx)
		case <-ctx.Done():
		case <-b.closing:
		}
	}()

	return routerRun(b.router, ctx)
}

// Running is closed once every kind handler has subscribed.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// IsRunning reports whether Publish currently delivers.
func (b *Bus) IsRunning() bool {
	return b.router.IsRunning() && !b.router.IsClosed() && !b.isClosing()
}

func (b *Bus) isClosing() bool {
	select {
	case <-b.closing:
		return true
	default:
		return false
	}
}

// Close stops accepting events, stops the router, waiting up to the configured
// timeout for in-flight dispatches, and closes the pub/sub. Queued events that
// were never dispatched are dropped.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closing)

		dropped := 0
		for _, q := range b.queues {
			dropped += q.close()
		}
		b.pending.Add(-int64(dropped))
		if dropped > 0 {
			b.Logger.Info("Dropped undispatched events on close", loggingpkg.LogFields{"count": dropped})
		}

		routerErr := b.router.Close()
		pubErr := b.publisher.Close()
		err = errors.Join(routerErr, pubErr)
	})
	return err
}

func (b *Bus) registerConfiguredMiddlewares(deps BusDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (b *Bus) getErrorClassifier() ErrorClassifier {
	if b.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return b.errorClassifier
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// start with Run.
func (b *Bus) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*chi.Mux)
	}

	mux, ok := b.httpServers[port]
	if !ok {
		mux = chi.NewRouter()
		mux.Use(chimiddleware.Recoverer)
		b.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (b *Bus) startHTTPServers(ctx context.Context) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	for port, mux := range b.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
}
