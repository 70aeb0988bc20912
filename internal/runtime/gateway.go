package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	idspkg "github.com/drblury/opsflow/internal/runtime/ids"
)

// Gateway is the only way external input enters the bus. It stamps each
// candidate with a fresh trace and the pinned schema version.
type Gateway struct {
	pub     Publisher
	now     func() time.Time
	traceID func() string
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayClock replaces time.Now for envelope timestamps.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithTraceIDSource replaces the trace identifier generator.
func WithTraceIDSource(next func() string) GatewayOption {
	return func(g *Gateway) { g.traceID = next }
}

// NewGateway returns a Gateway publishing through pub.
func NewGateway(pub Publisher, opts ...GatewayOption) (*Gateway, error) {
	if pub == nil {
		return nil, errspkg.ErrBusRequired
	}
	g := &Gateway{
		pub:     pub,
		now:     time.Now,
		traceID: idspkg.NewTraceID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// PublishIntake opens a new trace for candidate and publishes it as an
// intake event. It returns the trace id. Candidates must already be
// hardened; the gateway only stamps them.
func (g *Gateway) PublishIntake(ctx context.Context, candidate events.IntakeCandidate) (string, error) {
	if candidate.Source == "" {
		return "", errspkg.ErrSourceRequired
	}
	traceID := g.traceID()
	if traceID == "" {
		return "", errspkg.ErrTraceIDRequired
	}

	env := events.NewEnvelope(events.KindIntake, traceID, g.now())
	if err := g.pub.Publish(ctx, events.NewIntakeEvent(env, candidate)); err != nil {
		if errors.Is(err, errspkg.ErrBusNotRunning) {
			return "", err
		}
		return "", fmt.Errorf("publish intake for %s: %w", traceID, err)
	}
	return traceID, nil
}
