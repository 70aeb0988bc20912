package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	idspkg "github.com/drblury/opsflow/internal/runtime/ids"
)

type capturingPublisher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, evt)
	return nil
}

func TestGatewayStampsIntake(t *testing.T) {
	pub := &capturingPublisher{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw, err := NewGateway(pub,
		WithGatewayClock(func() time.Time { return now }),
		WithTraceIDSource(func() string { return "trace-fixed" }),
	)
	require.NoError(t, err)

	candidate := events.IntakeCandidate{Source: "gmail", Sender: "a@example.com", Subject: "hi", Body: "hello", ExternalID: "m-1"}
	traceID, err := gw.PublishIntake(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, "trace-fixed", traceID)

	require.Len(t, pub.published, 1)
	evt, ok := pub.published[0].(events.IntakeEvent)
	require.True(t, ok, "expected an intake event, got %T", pub.published[0])
	assert.Equal(t, events.VersionPin, evt.SchemaVersion)
	assert.Equal(t, events.KindIntake, evt.Kind)
	assert.Equal(t, "trace-fixed", evt.TraceID)
	assert.Equal(t, now.UnixMilli(), evt.Timestamp)
	assert.Equal(t, candidate, evt.IntakeCandidate)
}

func TestGatewayOpensAFreshTracePerCandidate(t *testing.T) {
	pub := &capturingPublisher{}
	gw, err := NewGateway(pub)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		traceID, err := gw.PublishIntake(context.Background(), events.IntakeCandidate{Source: "gmail", Body: "same"})
		require.NoError(t, err)
		assert.False(t, seen[traceID], "trace id reused: %s", traceID)
		seen[traceID] = true

		_, ok := idspkg.TraceTime(traceID)
		assert.True(t, ok, "trace id is not a ULID: %s", traceID)
	}
}

func TestGatewayValidation(t *testing.T) {
	_, err := NewGateway(nil)
	assert.ErrorIs(t, err, errspkg.ErrBusRequired)

	pub := &capturingPublisher{}
	gw, err := NewGateway(pub)
	require.NoError(t, err)
	_, err = gw.PublishIntake(context.Background(), events.IntakeCandidate{Body: "orphan"})
	assert.ErrorIs(t, err, errspkg.ErrSourceRequired)

	gw, err = NewGateway(pub, WithTraceIDSource(func() string { return "" }))
	require.NoError(t, err)
	_, err = gw.PublishIntake(context.Background(), events.IntakeCandidate{Source: "gmail"})
	assert.ErrorIs(t, err, errspkg.ErrTraceIDRequired)
	assert.Empty(t, pub.published)
}

func TestGatewayWrapsPublishErrors(t *testing.T) {
	boom := errors.New("boom")
	gw, err := NewGateway(&capturingPublisher{err: boom}, WithTraceIDSource(func() string { return "trace-1" }))
	require.NoError(t, err)

	_, err = gw.PublishIntake(context.Background(), events.IntakeCandidate{Source: "gmail"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "trace-1")

	gw, err = NewGateway(&capturingPublisher{err: errspkg.ErrBusNotRunning})
	require.NoError(t, err)
	_, err = gw.PublishIntake(context.Background(), events.IntakeCandidate{Source: "gmail"})
	assert.Equal(t, errspkg.ErrBusNotRunning, err)
}

func TestGatewayPublishesThroughTheBus(t *testing.T) {
	tb := newTestBus(t)
	rec := newRecorder[events.IntakeEvent]()
	require.NoError(t, Subscribe(tb.Bus, "intake", rec.handle))
	tb.start(t)

	gw, err := NewGateway(tb.Bus)
	require.NoError(t, err)

	traceID, err := gw.PublishIntake(context.Background(), events.IntakeCandidate{Source: "gmail", Body: "hello"})
	require.NoError(t, err)

	got := rec.wait(t, 1)
	assert.Equal(t, traceID, got[0].TraceID)
	assert.Equal(t, "hello", got[0].Body)
}
