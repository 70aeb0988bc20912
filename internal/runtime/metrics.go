package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/opsflow/internal/runtime/events"
)

// busMetrics tracks publish and delivery outcomes per event kind.
type busMetrics struct {
	mu sync.Mutex

	publishedTotal  *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	refusedTotal    *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// newBusCounterVec creates a counter vec in the opsflow/bus namespace.
func newBusCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsflow",
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newBusMetrics(registerer prometheus.Registerer) *busMetrics {
	return &busMetrics{
		registerer:      registerer,
		publishedTotal:  newBusCounterVec("published_total", "Events accepted by Publish", []string{"kind"}),
		deliveriesTotal: newBusCounterVec("deliveries_total", "Subscriber invocations by outcome", []string{"kind", "subscriber", "outcome"}),
		refusedTotal:    newBusCounterVec("refused_total", "Events refused before dispatch", []string{"kind", "reason"}),
		skippedTotal:    newBusCounterVec("skipped_total", "Events of failed traces skipped before dispatch", []string{"kind"}),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already registered by another bus on the same registerer are reused.
func (m *busMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	vecs := []**prometheus.CounterVec{&m.publishedTotal, &m.deliveriesTotal, &m.refusedTotal, &m.skippedTotal}
	for _, vec := range vecs {
		if err := m.registerer.Register(*vec); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return err
			}
			*vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	m.registered = true
	return nil
}

func (m *busMetrics) RecordPublished(kind events.Kind) {
	m.publishedTotal.WithLabelValues(string(kind)).Inc()
}

func (m *busMetrics) RecordDelivery(kind events.Kind, subscriber string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(defaultErrorClassifier(err))
	}
	m.deliveriesTotal.WithLabelValues(string(kind), subscriber, outcome).Inc()
}

func (m *busMetrics) RecordRefused(kind events.Kind, reason string) {
	m.refusedTotal.WithLabelValues(string(kind), reason).Inc()
}

func (m *busMetrics) RecordSkipped(kind events.Kind) {
	m.skippedTotal.WithLabelValues(string(kind)).Inc()
}
