// Package boundary records failed traces.
package boundary

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// DefaultRetention bounds how many failed traces are remembered.
const DefaultRetention = 10000

// OriginBus labels failures raised by the bus itself rather than a subscriber.
const OriginBus = "bus"

// Failure is the recorded state of a failed trace.
type Failure struct {
	TraceID  string    `json:"trace_id"`
	Reason   string    `json:"reason"`
	Origin   string    `json:"origin"`
	FirstAt  time.Time `json:"first_failed_at"`
	FailedAt time.Time `json:"failed_at"`
	Count    int       `json:"count"`
}

// Guard is the trace failure registry. Success is implicit: a trace without a
// record has not failed. The registry is bounded; the least recently failed
// traces are evicted first.
type Guard struct {
	mu       sync.Mutex
	failures *lru.Cache[string, Failure]
	logger   loggingpkg.ServiceLogger
	now      func() time.Time

	failuresTotal *prometheus.CounterVec
}

type options struct {
	retention  int
	now        func() time.Time
	registerer prometheus.Registerer
}

// Option customises a Guard.
type Option func(*options)

// WithRetention sets the number of failed traces kept for lookup.
func WithRetention(n int) Option {
	return func(o *options) { o.retention = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRegisterer registers the failure counter on r instead of the default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// New creates a Guard.
func New(logger loggingpkg.ServiceLogger, opts ...Option) (*Guard, error) {
	if logger == nil {
		return nil, fmt.Errorf("boundary: logger is required")
	}
	o := options{
		retention:  DefaultRetention,
		now:        time.Now,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retention <= 0 {
		return nil, fmt.Errorf("boundary: retention must be positive, got %d", o.retention)
	}

	g := &Guard{
		logger: logger.With(loggingpkg.LogFields{"component": "boundary"}),
		now:    o.now,
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsflow",
			Subsystem: "boundary",
			Name:      "trace_failures_total",
			Help:      "Number of failTrace calls, by reporting origin",
		}, []string{"origin"}),
	}

	cache, err := lru.NewWithEvict(o.retention, g.onEvict)
	if err != nil {
		return nil, fmt.Errorf("boundary: %w", err)
	}
	g.failures = cache

	if o.registerer != nil {
		if err := o.registerer.Register(g.failuresTotal); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, fmt.Errorf("boundary: register metrics: %w", err)
			}
			g.failuresTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	return g, nil
}

// FailTrace records that traceID failed. Repeated calls overwrite the reason
// and time and increment Count; they never error.
func (g *Guard) FailTrace(traceID, reason string) {
	g.FailTraceFrom(OriginBus, traceID, reason)
}

// FailTraceFrom is FailTrace with the name of the reporting component.
func (g *Guard) FailTraceFrom(origin, traceID, reason string) {
	now := g.now()

	g.mu.Lock()
	rec, existed := g.failures.Peek(traceID)
	if !existed {
		rec = Failure{TraceID: traceID, FirstAt: now}
	}
	rec.Reason = reason
	rec.Origin = origin
	rec.FailedAt = now
	rec.Count++
	g.failures.Add(traceID, rec)
	g.mu.Unlock()

	g.failuresTotal.WithLabelValues(origin).Inc()
	g.logger.Error("Trace failed", nil, loggingpkg.LogFields{
		"trace_id": traceID,
		"reason":   reason,
		"origin":   origin,
		"count":    rec.Count,
	})
}

// Failure returns the record for traceID, if any.
func (g *Guard) Failure(traceID string) (Failure, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures.Peek(traceID)
}

// Failed reports whether traceID has a failure record.
func (g *Guard) Failed(traceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures.Contains(traceID)
}

// Failures returns every retained record, least recently failed first.
func (g *Guard) Failures() []Failure {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures.Values()
}

// Len returns the number of retained failed traces.
func (g *Guard) Len() int {
	return g.failures.Len()
}

func (g *Guard) onEvict(traceID string, rec Failure) {
	g.logger.Debug("Evicted failed trace", loggingpkg.LogFields{
		"trace_id":  traceID,
		"failed_at": rec.FailedAt,
	})
}
