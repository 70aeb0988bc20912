package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	idspkg "github.com/drblury/opsflow/internal/runtime/ids"
)

// Publisher emits fully stamped events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// NewMessage converts evt into a Watermill message carrying the standard
// metadata.
func NewMessage(evt events.Event) (*message.Message, error) {
	if evt == nil {
		return nil, errspkg.ErrEventRequired
	}
	if err := validateEnvelope(evt); err != nil {
		return nil, err
	}

	payload, err := events.Encode(evt)
	if err != nil {
		return nil, err
	}

	meta := evt.Meta()
	msg := message.NewMessage(idspkg.NewMessageID(), payload)
	msg.Metadata.Set(MetadataKeyEventKind, string(meta.Kind))
	msg.Metadata.Set(MetadataKeyTraceID, meta.TraceID)
	msg.Metadata.Set(MetadataKeySchemaVersion, strconv.Itoa(meta.SchemaVersion))
	msg.Metadata.Set(MetadataKeyCorrelationID, meta.TraceID)
	return msg, nil
}

func validateEnvelope(evt events.Event) error {
	meta := evt.Meta()
	if meta.SchemaVersion != events.VersionPin {
		return &events.SchemaVersionError{TraceID: meta.TraceID, Kind: meta.Kind, Got: meta.SchemaVersion}
	}
	if meta.TraceID == "" {
		return errspkg.ErrTraceIDRequired
	}
	if meta.Kind != evt.EventKind() {
		return fmt.Errorf("%w: envelope says %s on a %s event", errspkg.ErrKindViolation, meta.Kind, evt.EventKind())
	}
	return nil
}

// Publish queues evt for every subscription of its kind without waiting for
// them to run. Events of one kind are dispatched in publish order.
func (b *Bus) Publish(ctx context.Context, evt events.Event) error {
	if b == nil {
		return errspkg.ErrBusRequired
	}
	if !b.IsRunning() {
		return errspkg.ErrBusNotRunning
	}

	msg, err := NewMessage(evt)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}

	kind := evt.EventKind()
	b.pending.Add(1)
	if !b.queues[kind].push(msg) {
		b.pending.Add(-1)
		return errspkg.ErrBusNotRunning
	}
	b.metrics.RecordPublished(kind)
	return nil
}
