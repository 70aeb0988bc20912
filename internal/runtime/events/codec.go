package events

import (
	"fmt"

	"github.com/bytedance/sonic"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
)

var codec = sonic.ConfigStd

// SchemaVersionError reports an event whose version differs from VersionPin.
type SchemaVersionError struct {
	TraceID string
	Kind    Kind
	Got     int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("untrusted event %s: schema version %d, pinned %d", e.Kind, e.Got, VersionPin)
}

func (e *SchemaVersionError) Is(target error) bool { return target == errspkg.ErrSchemaVersion }

// UnknownKindError reports a kind outside the closed set.
type UnknownKindError struct {
	TraceID string
	Kind    Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown event kind %q", string(e.Kind))
}

func (e *UnknownKindError) Is(target error) bool { return target == errspkg.ErrUnknownKind }

// KindViolationError reports an event delivered to a subscriber of another kind.
type KindViolationError struct {
	Subscriber string
	Expected   Kind
	Got        Kind
}

func (e *KindViolationError) Error() string {
	return fmt.Sprintf("%s received unauthorized event: %s", e.Subscriber, e.Got)
}

func (e *KindViolationError) Is(target error) bool { return target == errspkg.ErrKindViolation }

// Encode serialises evt as a flat JSON object.
func Encode(evt Event) ([]byte, error) {
	if evt == nil {
		return nil, errspkg.ErrEventRequired
	}
	data, err := codec.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventKind(), err)
	}
	return data, nil
}

// PeekEnvelope decodes only the envelope fields of payload.
func PeekEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Decode parses payload into its concrete variant. Events carrying a schema
// version other than VersionPin are refused.
func Decode(payload []byte) (Event, error) {
	env, err := PeekEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if env.SchemaVersion != VersionPin {
		return nil, &SchemaVersionError{TraceID: env.TraceID, Kind: env.Kind, Got: env.SchemaVersion}
	}

	switch env.Kind {
	case KindIntake:
		return decodeAs[IntakeEvent](payload)
	case KindClassification:
		return decodeAs[ClassificationEvent](payload)
	case KindPlan:
		return decodeAs[PlanEvent](payload)
	case KindApproval:
		return decodeAs[ApprovalEvent](payload)
	case KindExecution:
		return decodeAs[ExecutionEvent](payload)
	default:
		return nil, &UnknownKindError{TraceID: env.TraceID, Kind: env.Kind}
	}
}

func decodeAs[E Event](payload []byte) (Event, error) {
	var evt E
	if err := codec.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", evt.EventKind(), err)
	}
	return evt, nil
}
