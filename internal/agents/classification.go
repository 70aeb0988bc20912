// Package agents holds the pipeline stages that consume bus events.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drblury/opsflow/internal/runtime"
	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// ClassificationAgentName is the subscription name, and the prefix of every
// failure reason the stage reports.
const ClassificationAgentName = "ClassificationAgent"

var urgentKeywords = []string{"urgent", "asap", "important"}

// Classify decides the priority of an intake and writes a one-line abstract.
// It is pure.
func Classify(subject, sender, body string) (events.Priority, string) {
	content := strings.ToLower(subject + " " + body)

	priority := events.PriorityLow
	for _, kw := range urgentKeywords {
		if strings.Contains(content, kw) {
			priority = events.PriorityHigh
			break
		}
	}

	if sender == "" {
		sender = "Unknown"
	}
	if subject == "" {
		subject = "No Subject"
	}
	return priority, fmt.Sprintf("Email from %s: %s", sender, subject)
}

// ClassificationAgent turns every Intake event into exactly one
// Classification event on the same trace.
type ClassificationAgent struct {
	publisher runtime.Publisher
	logger    loggingpkg.ServiceLogger
	now       func() time.Time
}

// NewClassificationAgent publishes its output through pub, normally the bus it
// is registered on.
func NewClassificationAgent(pub runtime.Publisher, log loggingpkg.ServiceLogger) *ClassificationAgent {
	return &ClassificationAgent{
		publisher: pub,
		logger:    log.With(loggingpkg.LogFields{"component": "classification_agent"}),
		now:       time.Now,
	}
}

// Register subscribes the agent to Intake events on bus.
func (a *ClassificationAgent) Register(bus *runtime.Bus) error {
	return runtime.Subscribe(bus, ClassificationAgentName, a.Handle)
}

// Handle classifies one intake. A returned error fails the trace and no
// Classification event is published.
func (a *ClassificationAgent) Handle(ctx context.Context, evt events.IntakeEvent) error {
	a.logger.Info("Processing intake", loggingpkg.LogFields{"trace_id": evt.TraceID})

	priority, abstract := Classify(evt.Subject, evt.Sender, evt.Body)
	out := events.ClassificationEvent{
		Envelope: events.Follow(evt, events.KindClassification, a.now()),
		Priority: priority,
		Abstract: abstract,
	}

	if err := a.publisher.Publish(ctx, out); err != nil {
		return fmt.Errorf("classification error: %w", err)
	}

	a.logger.Info("Published classification", loggingpkg.LogFields{
		"trace_id": evt.TraceID,
		"priority": string(priority),
	})
	return nil
}
