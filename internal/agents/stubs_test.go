package agents

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
)

func TestRegisterStubsSubscribesEachPlaceholderOnce(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, RegisterStubs(p.bus, p.log))

	got := map[string]events.Kind{}
	for _, h := range p.bus.Handlers() {
		got[h.Name] = h.Kind
	}
	assert.Equal(t, map[string]events.Kind{
		IntakeAgentName:    events.KindIntake,
		PlannerAgentName:   events.KindPlan,
		ApprovalStubName:   events.KindApproval,
		ExecutionAgentName: events.KindExecution,
	}, got)

	err := RegisterStubs(p.bus, p.log)
	assert.ErrorIs(t, err, errspkg.ErrDuplicateSubscription)
}

func TestStubsAcknowledgeWithTrace(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, RegisterStubs(p.bus, p.log))
	p.start(t)

	plan := events.PlanEvent{Envelope: events.NewEnvelope(events.KindPlan, "trace-plan", time.Now())}
	require.NoError(t, p.bus.Publish(context.Background(), plan))

	want := watermill.CapturedMessage{
		Level:  watermill.InfoLogLevel,
		Msg:    "[STUB:PlannerAgent] acknowledged",
		Fields: watermill.LogFields{"component": "stub", "trace_id": "trace-plan"},
	}
	deadline := time.Now().Add(waitTimeout)
	for !p.logs.Has(want) {
		if time.Now().After(deadline) {
			t.Fatalf("stub did not acknowledge: %+v", p.logs.Captured()[watermill.InfoLogLevel])
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, p.guard.Len())
}
