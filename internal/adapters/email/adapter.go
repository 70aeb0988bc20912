package email

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// dedupCapacity bounds the published keys remembered for suppression. The
// oldest key is forgotten first once the bound is hit.
const dedupCapacity = 8192

// IntakePublisher opens a trace for a hardened candidate. *runtime.Gateway
// satisfies it.
type IntakePublisher interface {
	PublishIntake(ctx context.Context, candidate events.IntakeCandidate) (string, error)
}

// PollSummary counts what happened to each listed message during one poll.
type PollSummary struct {
	Listed     int `json:"listed"`
	Published  int `json:"published"`
	Dropped    int `json:"dropped"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Adapter is one-way plumbing from a MessageSource to the publish gateway:
// fetch, normalise, publish. Scheduling is owned by the caller.
type Adapter struct {
	source     MessageSource
	publisher  IntakePublisher
	normalizer *Normalizer
	logger     loggingpkg.ServiceLogger

	dedup       *expirable.LRU[string, struct{}]
	dedupWindow time.Duration
	registerer  prometheus.Registerer
	metrics     *ingestMetrics
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithDedupWindow suppresses republishing an origin message published
// within window. A message whose publish failed is not remembered. Zero
// disables suppression.
func WithDedupWindow(window time.Duration) AdapterOption {
	return func(a *Adapter) { a.dedupWindow = window }
}

// WithRegisterer sets the registerer for the ingest metrics. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) AdapterOption {
	return func(a *Adapter) { a.registerer = reg }
}

func NewAdapter(source MessageSource, publisher IntakePublisher, log loggingpkg.ServiceLogger, opts ...AdapterOption) (*Adapter, error) {
	if source == nil {
		return nil, fmt.Errorf("opsflow: message source is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("opsflow: intake publisher is required")
	}
	if log == nil {
		return nil, fmt.Errorf("opsflow: logger is required")
	}

	a := &Adapter{
		source:     source,
		publisher:  publisher,
		normalizer: NewNormalizer(log),
		logger:     log.With(loggingpkg.LogFields{"component": "email_adapter"}),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.dedupWindow > 0 {
		a.dedup = expirable.NewLRU[string, struct{}](dedupCapacity, nil, a.dedupWindow)
	}

	a.metrics = newIngestMetrics(a.registerer)
	if err := a.metrics.Register(); err != nil {
		return nil, fmt.Errorf("register ingest metrics: %w", err)
	}
	return a, nil
}

// Poll lists up to maxResults messages and pushes each through the hardening
// pipeline. A list failure is logged and treated as an empty mailbox; a
// failure on one message drops that message only. Nothing is retried.
func (a *Adapter) Poll(ctx context.Context, maxResults int64) PollSummary {
	var summary PollSummary
	a.logger.Info("Starting poll", loggingpkg.LogFields{"max_results": maxResults})

	ids, err := a.source.List(ctx, maxResults)
	if err != nil {
		a.logger.Error("Failed to list messages", err, nil)
		a.metrics.Record(outcomeListFailed)
		ids = nil
	}
	summary.Listed = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			a.logger.Info("Poll interrupted", loggingpkg.LogFields{"remaining": summary.Listed - summary.total()})
			break
		}
		outcome := a.ingest(ctx, id)
		summary.add(outcome)
		a.metrics.Record(outcome)
	}

	a.logger.Info("Poll complete", loggingpkg.LogFields{
		"listed":     summary.Listed,
		"published":  summary.Published,
		"dropped":    summary.Dropped,
		"duplicates": summary.Duplicates,
		"failed":     summary.Failed,
	})
	return summary
}

func (a *Adapter) ingest(ctx context.Context, id string) string {
	raw, body, err := a.source.Fetch(ctx, id)
	if err != nil {
		a.logger.Error("Dropped message due to processing error", err, loggingpkg.LogFields{"external_id": id})
		return outcomeFailed
	}

	candidate, ok := a.normalizer.Normalize(raw, body)
	if !ok {
		return outcomeDropped
	}

	key := candidate.Source + ":" + candidate.ExternalID
	if a.dedup != nil && a.dedup.Contains(key) {
		a.logger.Debug("Skipping already published message", loggingpkg.LogFields{"external_id": id})
		return outcomeDuplicate
	}

	traceID, err := a.publisher.PublishIntake(ctx, candidate)
	if err != nil {
		a.logger.Error("Dropped message due to processing error", err, loggingpkg.LogFields{"external_id": id})
		return outcomeFailed
	}
	if a.dedup != nil {
		a.dedup.Add(key, struct{}{})
	}

	a.logger.Info("Published message", loggingpkg.LogFields{"external_id": id, "trace_id": traceID})
	return outcomePublished
}

func (s *PollSummary) add(outcome string) {
	switch outcome {
	case outcomePublished:
		s.Published++
	case outcomeDropped:
		s.Dropped++
	case outcomeDuplicate:
		s.Duplicates++
	default:
		s.Failed++
	}
}

func (s PollSummary) total() int {
	return s.Published + s.Dropped + s.Duplicates + s.Failed
}
