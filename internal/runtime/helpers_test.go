package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/opsflow/internal/runtime/boundary"
	configpkg "github.com/drblury/opsflow/internal/runtime/config"
	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

const waitTimeout = 2 * time.Second

type testBus struct {
	*Bus
	guard    *boundary.Guard
	registry *prometheus.Registry
	logs     *watermill.CaptureLoggerAdapter
}

func newTestLogger() (loggingpkg.ServiceLogger, *watermill.CaptureLoggerAdapter) {
	capture := watermill.NewCaptureLogger()
	return loggingpkg.NewWatermillServiceLogger(capture), capture
}

// newTestBus builds a bus on a private registry without starting it.
func newTestBus(t *testing.T, mutate ...func(*configpkg.Config)) *testBus {
	t.Helper()

	conf := configpkg.Default()
	for _, m := range mutate {
		m(conf)
	}

	log, capture := newTestLogger()
	registry := prometheus.NewRegistry()
	guard, err := boundary.New(log, boundary.WithRegisterer(registry))
	if err != nil {
		t.Fatalf("guard init failed: %v", err)
	}

	bus, err := NewBus(context.Background(), conf, log, guard, BusDependencies{MetricsRegisterer: registry})
	if err != nil {
		t.Fatalf("bus init failed: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	return &testBus{Bus: bus, guard: guard, registry: registry, logs: capture}
}

// start runs the bus until the test ends and waits for every kind handler.
func (tb *testBus) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = tb.Run(ctx) }()

	select {
	case <-tb.Running():
	case <-time.After(waitTimeout):
		t.Fatal("bus did not start")
	}
}

// recorder collects events delivered to a subscription.
type recorder[E events.Event] struct {
	mu     sync.Mutex
	events []E
	signal chan struct{}
}

func newRecorder[E events.Event]() *recorder[E] {
	return &recorder[E]{signal: make(chan struct{}, 128)}
}

func (r *recorder[E]) handle(_ context.Context, evt E) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	r.signal <- struct{}{}
	return nil
}

func (r *recorder[E]) wait(t *testing.T, n int) []E {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.signal:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return r.snapshot()
}

func (r *recorder[E]) snapshot() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, len(r.events))
	copy(out, r.events)
	return out
}

// waitFor polls cond until it holds or the wait times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func intakeEvent(traceID, body string) events.IntakeEvent {
	return events.NewIntakeEvent(
		events.NewEnvelope(events.KindIntake, traceID, time.Now()),
		events.IntakeCandidate{Source: "test", Body: body},
	)
}
