package agents

import (
	"context"
	"errors"

	"github.com/drblury/opsflow/internal/runtime"
	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// Names of the placeholder stages.
const (
	IntakeAgentName    = "IntakeAgent"
	PlannerAgentName   = "PlannerAgent"
	ApprovalStubName   = "ApprovalStub"
	ExecutionAgentName = "ExecutionAgent"
)

// RegisterStubs subscribes the inert stages that only acknowledge their
// kind. Classification has no stub; ClassificationAgent owns that kind.
func RegisterStubs(bus *runtime.Bus, log loggingpkg.ServiceLogger) error {
	log = log.With(loggingpkg.LogFields{"component": "stub"})

	return errors.Join(
		runtime.Subscribe(bus, IntakeAgentName, acknowledge[events.IntakeEvent](log, IntakeAgentName)),
		runtime.Subscribe(bus, PlannerAgentName, acknowledge[events.PlanEvent](log, PlannerAgentName)),
		runtime.Subscribe(bus, ApprovalStubName, acknowledge[events.ApprovalEvent](log, ApprovalStubName)),
		runtime.Subscribe(bus, ExecutionAgentName, acknowledge[events.ExecutionEvent](log, ExecutionAgentName)),
	)
}

func acknowledge[E events.Event](log loggingpkg.ServiceLogger, name string) runtime.EventHandler[E] {
	msg := "[STUB:" + name + "] acknowledged"
	return func(_ context.Context, evt E) error {
		log.Info(msg, loggingpkg.LogFields{"trace_id": evt.Meta().TraceID})
		return nil
	}
}
