package opsflow

import (
	"github.com/drblury/opsflow/internal/adapters/email"
	"github.com/drblury/opsflow/internal/agents"
	"github.com/drblury/opsflow/internal/app"
	runtimepkg "github.com/drblury/opsflow/internal/runtime"
	"github.com/drblury/opsflow/internal/runtime/boundary"
	configpkg "github.com/drblury/opsflow/internal/runtime/config"
	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	idspkg "github.com/drblury/opsflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

type (
	Config      = configpkg.Config
	GmailConfig = configpkg.GmailConfig
	PollConfig  = configpkg.PollConfig

	Bus             = runtimepkg.Bus
	BusDependencies = runtimepkg.BusDependencies
	Publisher       = runtimepkg.Publisher
	Gateway         = runtimepkg.Gateway
	GatewayOption   = runtimepkg.GatewayOption
	TraceGuard      = runtimepkg.TraceGuard

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	HandlerInfo  = runtimepkg.HandlerInfo
	HandlerStats = runtimepkg.HandlerStats

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	Guard         = boundary.Guard
	GuardOption   = boundary.Option
	FailureRecord = boundary.Failure

	Kind                = events.Kind
	Envelope            = events.Envelope
	Event               = events.Event
	Priority            = events.Priority
	IntakeCandidate     = events.IntakeCandidate
	IntakeEvent         = events.IntakeEvent
	ClassificationEvent = events.ClassificationEvent
	PlanEvent           = events.PlanEvent
	ApprovalEvent       = events.ApprovalEvent
	ExecutionEvent      = events.ExecutionEvent

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	MessageSource = email.MessageSource
	RawMessage    = email.RawMessage
	PollSummary   = email.PollSummary

	App        = app.App
	AppOptions = app.Options

	ConfigValidationError = errspkg.ConfigValidationError
)

// EventHandler is the typed callback for Subscribe.
type EventHandler[E events.Event] = runtimepkg.EventHandler[E]

const (
	KindIntake         = events.KindIntake
	KindClassification = events.KindClassification
	KindPlan           = events.KindPlan
	KindApproval       = events.KindApproval
	KindExecution      = events.KindExecution

	PriorityHigh = events.PriorityHigh
	PriorityLow  = events.PriorityLow

	VersionPin = events.VersionPin

	MaxBodyRunes = email.MaxBodyRunes
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone          = runtimepkg.ErrorCategoryNone
	ErrorCategoryKindViolation = runtimepkg.ErrorCategoryKindViolation
	ErrorCategoryProcessing    = runtimepkg.ErrorCategoryProcessing
	ErrorCategoryPanic         = runtimepkg.ErrorCategoryPanic
	ErrorCategoryCanceled      = runtimepkg.ErrorCategoryCanceled
)

var (
	LoadConfig      = configpkg.Load
	DefaultConfig   = configpkg.Default
	NewBus          = runtimepkg.NewBus
	NewGateway      = runtimepkg.NewGateway
	NewGuard        = boundary.New
	NewApp          = app.New
	Kinds           = events.Kinds
	NewEnvelope     = events.NewEnvelope
	Follow          = events.Follow
	EncodeEvent     = events.Encode
	DecodeEvent     = events.Decode
	Harden          = email.Harden
	Classify        = agents.Classify
	NewStaticSource = email.NewStaticSource

	WithRetention       = boundary.WithRetention
	WithGuardClock      = boundary.WithClock
	WithGuardRegisterer = boundary.WithRegisterer
	WithGatewayClock    = runtimepkg.WithGatewayClock
	WithTraceIDSource   = runtimepkg.WithTraceIDSource

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks

	NewSlogLogger             = loggingpkg.NewSlogLogger
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewTraceID = idspkg.NewTraceID

	ErrBusRequired              = errspkg.ErrBusRequired
	ErrBusNotRunning            = errspkg.ErrBusNotRunning
	ErrGuardRequired            = errspkg.ErrGuardRequired
	ErrHandlerRequired          = errspkg.ErrHandlerRequired
	ErrSubscriptionNameRequired = errspkg.ErrSubscriptionNameRequired
	ErrDuplicateSubscription    = errspkg.ErrDuplicateSubscription
	ErrEventRequired            = errspkg.ErrEventRequired
	ErrTraceIDRequired          = errspkg.ErrTraceIDRequired
	ErrSchemaVersion            = errspkg.ErrSchemaVersion
	ErrKindViolation            = errspkg.ErrKindViolation
	ErrUnknownKind              = errspkg.ErrUnknownKind
	ErrSourceRequired           = errspkg.ErrSourceRequired
	ErrInert                    = app.ErrInert
)

// Subscribe registers fn under name for the kind carried by E.
func Subscribe[E events.Event](bus *Bus, name string, fn EventHandler[E]) error {
	return runtimepkg.Subscribe(bus, name, fn)
}
