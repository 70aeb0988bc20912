// Package events defines the versioned envelope and the closed set of event
// kinds that flow over the bus.
package events

import "time"

// VersionPin is the schema version stamped on every published event. Any other
// value seen on the wire is untrusted.
const VersionPin = 1

// Kind discriminates the event variants.
type Kind string

const (
	KindIntake         Kind = "INTAKE_EVENT"
	KindClassification Kind = "CLASSIFICATION_EVENT"
	KindPlan           Kind = "PLAN_EVENT"
	KindApproval       Kind = "APPROVAL_EVENT"
	KindExecution      Kind = "EXECUTION_EVENT"
)

var allKinds = []Kind{KindIntake, KindClassification, KindPlan, KindApproval, KindExecution}

// Kinds returns every known kind in pipeline order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Envelope is the common header carried by every event.
type Envelope struct {
	SchemaVersion int    `json:"v"`
	Kind          Kind   `json:"kind"`
	TraceID       string `json:"traceId"`
	Timestamp     int64  `json:"ts"`
}

// NewEnvelope stamps the version pin and the timestamp for a new event of kind.
func NewEnvelope(kind Kind, traceID string, now time.Time) Envelope {
	return Envelope{
		SchemaVersion: VersionPin,
		Kind:          kind,
		TraceID:       traceID,
		Timestamp:     now.UnixMilli(),
	}
}

// Follow builds the envelope of an event caused by parent. The trace identity is
// copied verbatim.
func Follow(parent Event, kind Kind, now time.Time) Envelope {
	return NewEnvelope(kind, parent.Meta().TraceID, now)
}

// Time converts the envelope timestamp back to a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Event is the sealed sum type over all variants. EventKind is constant per
// variant and safe to call on the zero value.
type Event interface {
	EventKind() Kind
	Meta() Envelope
	Accept(v Visitor) error
	sealed()
}

// Visitor matches exhaustively over the event variants.
type Visitor interface {
	VisitIntake(IntakeEvent) error
	VisitClassification(ClassificationEvent) error
	VisitPlan(PlanEvent) error
	VisitApproval(ApprovalEvent) error
	VisitExecution(ExecutionEvent) error
}

// Priority is the classification outcome.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

// IntakeCandidate is a hardened Intake payload that has not yet been given a
// trace identity.
type IntakeCandidate struct {
	Source     string `json:"source"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ExternalID string `json:"externalId"`
}

// IntakeEvent opens a trace.
type IntakeEvent struct {
	Envelope
	IntakeCandidate
}

// ClassificationEvent carries the priority decided for an intake.
type ClassificationEvent struct {
	Envelope
	Priority Priority `json:"priority"`
	Abstract string   `json:"abstract"`
}

// PlanEvent is reserved; its payload is opaque.
type PlanEvent struct {
	Envelope
	Detail map[string]any `json:"detail,omitempty"`
}

// ApprovalEvent is reserved; its payload is opaque.
type ApprovalEvent struct {
	Envelope
	Detail map[string]any `json:"detail,omitempty"`
}

// ExecutionEvent is reserved; its payload is opaque.
type ExecutionEvent struct {
	Envelope
	Detail map[string]any `json:"detail,omitempty"`
}

func (IntakeEvent) EventKind() Kind         { return KindIntake }
func (ClassificationEvent) EventKind() Kind { return KindClassification }
func (PlanEvent) EventKind() Kind           { return KindPlan }
func (ApprovalEvent) EventKind() Kind       { return KindApproval }
func (ExecutionEvent) EventKind() Kind      { return KindExecution }

func (e IntakeEvent) Meta() Envelope         { return e.Envelope }
func (e ClassificationEvent) Meta() Envelope { return e.Envelope }
func (e PlanEvent) Meta() Envelope           { return e.Envelope }
func (e ApprovalEvent) Meta() Envelope       { return e.Envelope }
func (e ExecutionEvent) Meta() Envelope      { return e.Envelope }

func (e IntakeEvent) Accept(v Visitor) error         { return v.VisitIntake(e) }
func (e ClassificationEvent) Accept(v Visitor) error { return v.VisitClassification(e) }
func (e PlanEvent) Accept(v Visitor) error           { return v.VisitPlan(e) }
func (e ApprovalEvent) Accept(v Visitor) error       { return v.VisitApproval(e) }
func (e ExecutionEvent) Accept(v Visitor) error      { return v.VisitExecution(e) }

func (IntakeEvent) sealed()         {}
func (ClassificationEvent) sealed() {}
func (PlanEvent) sealed()           {}
func (ApprovalEvent) sealed()       {}
func (ExecutionEvent) sealed()      {}

// NewIntakeEvent merges a candidate with its envelope.
func NewIntakeEvent(env Envelope, candidate IntakeCandidate) IntakeEvent {
	env.Kind = KindIntake
	return IntakeEvent{Envelope: env, IntakeCandidate: candidate}
}
