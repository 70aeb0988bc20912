package email

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomePublished  = "published"
	outcomeDropped    = "dropped"
	outcomeDuplicate  = "duplicate"
	outcomeFailed     = "failed"
	outcomeListFailed = "list_failed"
)

type ingestMetrics struct {
	registerer prometheus.Registerer
	messages   *prometheus.CounterVec
}

func newIngestMetrics(reg prometheus.Registerer) *ingestMetrics {
	return &ingestMetrics{
		registerer: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsflow",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Origin messages seen by the email adapter, by outcome.",
		}, []string{"outcome"}),
	}
}

// Register adds the collectors, reusing ones registered by an earlier adapter.
func (m *ingestMetrics) Register() error {
	if m.registerer == nil {
		return nil
	}
	if err := m.registerer.Register(m.messages); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		m.messages = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return nil
}

func (m *ingestMetrics) Record(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}
