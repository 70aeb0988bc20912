package errors

import sterrors "errors"

var (
	ErrBusRequired              = sterrors.New("opsflow: event bus is required")
	ErrBusNotRunning            = sterrors.New("opsflow: event bus is not running")
	ErrGuardRequired            = sterrors.New("opsflow: boundary guard is required")
	ErrHandlerRequired          = sterrors.New("opsflow: handler function is required")
	ErrSubscriptionNameRequired = sterrors.New("opsflow: subscription name is required")
	ErrDuplicateSubscription    = sterrors.New("opsflow: subscription name already registered for kind")
	ErrEventRequired            = sterrors.New("opsflow: event is required")
	ErrTraceIDRequired          = sterrors.New("opsflow: trace id is required")
	ErrSchemaVersion            = sterrors.New("opsflow: schema version does not match pin")
	ErrKindViolation            = sterrors.New("opsflow: event kind violation")
	ErrUnknownKind              = sterrors.New("opsflow: unknown event kind")
	ErrSourceRequired           = sterrors.New("opsflow: message source is required")
)

// ConfigValidationError marks configuration that failed validation at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "opsflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
