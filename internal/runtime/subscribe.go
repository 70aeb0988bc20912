package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/opsflow/internal/runtime/boundary"
	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// EventHandler handles one event of a single, already narrowed kind.
type EventHandler[E events.Event] func(ctx context.Context, evt E) error

type subscription struct {
	name   string
	kind   events.Kind
	handle func(ctx context.Context, evt events.Event) error
	info   *HandlerInfo
}

// Subscribe registers fn for every future event of E's kind. fn is only ever
// called with an E; an event of any other kind reaching this subscription is a
// kind violation and fails its trace instead. Past events are not replayed.
func Subscribe[E events.Event](b *Bus, name string, fn EventHandler[E]) error {
	if b == nil {
		return errspkg.ErrBusRequired
	}
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	var zero E
	if any(zero) == nil {
		return fmt.Errorf("%w: subscription %q needs a concrete event type", errspkg.ErrUnknownKind, name)
	}
	kind := zero.EventKind()

	return b.addSubscription(kind, name, func(ctx context.Context, evt events.Event) error {
		typed, ok := evt.(E)
		if !ok {
			return &events.KindViolationError{Subscriber: name, Expected: kind, Got: evt.EventKind()}
		}
		return fn(ctx, typed)
	})
}

func (b *Bus) addSubscription(kind events.Kind, name string, handle func(context.Context, events.Event) error) error {
	if name == "" {
		return errspkg.ErrSubscriptionNameRequired
	}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	existing := b.subs[kind]
	for _, sub := range existing {
		if sub.name == name {
			return fmt.Errorf("%w: %s on %s", errspkg.ErrDuplicateSubscription, name, kind)
		}
	}

	b.order++
	sub := &subscription{
		name:   name,
		kind:   kind,
		handle: handle,
		info: &HandlerInfo{
			Name:  name,
			Kind:  kind,
			Order: b.order,
			Stats: newHandlerStats(kind, b.load),
		},
	}
	// Copy on write: a dispatch already holding the old slice keeps a
	// consistent snapshot.
	next := slices.Clone(existing)
	b.subs[kind] = append(next, sub)

	b.Logger.Debug("Subscribed", loggingpkg.LogFields{"subscriber": name, "kind": string(kind)})
	return nil
}

func (b *Bus) snapshot(kind events.Kind) []*subscription {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return b.subs[kind]
}

// Handlers lists every subscription in registration order.
func (b *Bus) Handlers() []*HandlerInfo {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()

	var out []*HandlerInfo
	for _, kind := range events.Kinds() {
		for _, sub := range b.subs[kind] {
			out = append(out, sub.info)
		}
	}
	slices.SortFunc(out, func(a, c *HandlerInfo) int { return a.Order - c.Order })
	return out
}

// dispatcher consumes one kind's topic. It always acks: decoding problems and
// subscriber failures are routed to the guard and never redelivered.
func (b *Bus) dispatcher(kind events.Kind) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		evt, err := events.Decode(msg.Payload)
		if err != nil {
			b.refuse(kind, msg, err)
			return nil
		}

		traceID := evt.Meta().TraceID
		if b.Conf.DropFailedTraces && b.guard.Failed(traceID) {
			b.metrics.RecordSkipped(kind)
			b.Logger.Info("Skipping event of failed trace", loggingpkg.LogFields{
				"kind":     string(kind),
				"trace_id": traceID,
			})
			return nil
		}

		for _, sub := range b.snapshot(kind) {
			b.deliver(msg.Context(), sub, evt)
		}
		return nil
	}
}

func (b *Bus) refuse(kind events.Kind, msg *message.Message, err error) {
	var (
		versionErr *events.SchemaVersionError
		unknownErr *events.UnknownKindError
		traceID    string
		reason     string
	)
	switch {
	case errors.As(err, &versionErr):
		traceID, reason = versionErr.TraceID, "schema_version"
	case errors.As(err, &unknownErr):
		traceID, reason = unknownErr.TraceID, "unknown_kind"
	default:
		reason = "malformed"
	}
	b.metrics.RecordRefused(kind, reason)

	if traceID == "" {
		b.Logger.Error("Dropping undecodable event", err, loggingpkg.LogFields{
			"kind":         string(kind),
			"message_uuid": msg.UUID,
		})
		return
	}
	b.guard.FailTraceFrom(boundary.OriginBus, traceID, err.Error())
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, evt events.Event) {
	stats := sub.info.Stats
	invocation := stats.onMessageStart(evt.Meta())
	start := time.Now()

	err := invokeIsolated(ctx, sub, evt)

	stats.onMessageFinish(invocation, time.Since(start), err, b.getErrorClassifier())
	b.metrics.RecordDelivery(sub.kind, sub.name, err)

	if err != nil {
		b.guard.FailTraceFrom(sub.name, evt.Meta().TraceID, failureReason(sub.name, err))
	}
}

// invokeIsolated runs one subscriber as its own unit of work.
func invokeIsolated(ctx context.Context, sub *subscription, evt events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Subscriber: sub.name, Value: r}
		}
	}()
	return sub.handle(ctx, evt)
}

func failureReason(subscriber string, err error) string {
	var violation *events.KindViolationError
	if errors.As(err, &violation) {
		return violation.Error()
	}
	var panicked *PanicError
	if errors.As(err, &panicked) {
		return panicked.Error()
	}
	return subscriber + ": " + err.Error()
}
