package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// JobContext describes one dispatch of one event to its kind's subscribers.
type JobContext struct {
	// HandlerName is the router handler, one per event kind.
	HandlerName string
	// Topic is the event kind the message was received from.
	Topic       string
	MessageUUID string
	TraceID     string
	Metadata    message.Metadata
	Context     context.Context
	StartedAt   time.Time
	// Duration is only set in OnJobDone and OnJobError.
	Duration time.Duration
}

// JobHooks defines callbacks for dispatch lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type JobHooks struct {
	OnJobStart func(ctx JobContext)
	OnJobDone  func(ctx JobContext)
	// OnJobError only fires for failures outside subscriber isolation, such as
	// a panic in a middleware. Subscriber failures go to the guard.
	OnJobError func(ctx JobContext, err error)
}

// Merge combines two JobHooks, creating a new JobHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h JobHooks) Merge(other JobHooks) JobHooks {
	return JobHooks{
		OnJobStart: chainHooks(h.OnJobStart, other.OnJobStart),
		OnJobDone:  chainHooks(h.OnJobDone, other.OnJobDone),
		OnJobError: chainErrorHooks(h.OnJobError, other.OnJobError),
	}
}

func chainHooks(a, b func(JobContext)) func(JobContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(JobContext, error)) func(JobContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// JobHooksMiddleware creates a middleware that invokes the provided hooks
// around every dispatch.
func JobHooksMiddleware(hooks JobHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "job_hooks",
		Builder: func(*Bus) (message.HandlerMiddleware, error) {
			return jobHooksMiddleware(hooks), nil
		},
	}
}

func jobHooksMiddleware(hooks JobHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			jobCtx := JobContext{
				HandlerName: message.HandlerNameFromCtx(ctx),
				Topic:       message.SubscribeTopicFromCtx(ctx),
				MessageUUID: msg.UUID,
				TraceID:     msg.Metadata.Get(MetadataKeyTraceID),
				Metadata:    msg.Metadata,
				Context:     ctx,
				StartedAt:   time.Now(),
			}

			if hooks.OnJobStart != nil {
				hooks.OnJobStart(jobCtx)
			}

			msgs, err := h(msg)
			jobCtx.Duration = time.Since(jobCtx.StartedAt)

			if err != nil {
				if hooks.OnJobError != nil {
					hooks.OnJobError(jobCtx, err)
				}
			} else if hooks.OnJobDone != nil {
				hooks.OnJobDone(jobCtx)
			}

			return msgs, err
		}
	}
}

// LoggingHooks returns hooks that trace dispatch lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) JobHooks {
	return JobHooks{
		OnJobStart: func(ctx JobContext) {
			logger.Trace("Dispatch started", loggingpkg.LogFields{
				"handler":      ctx.HandlerName,
				"topic":        ctx.Topic,
				"message_uuid": ctx.MessageUUID,
				"trace_id":     ctx.TraceID,
			})
		},
		OnJobDone: func(ctx JobContext) {
			logger.Trace("Dispatch completed", loggingpkg.LogFields{
				"handler":     ctx.HandlerName,
				"trace_id":    ctx.TraceID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnJobError: func(ctx JobContext, err error) {
			logger.Error("Dispatch failed", err, loggingpkg.LogFields{
				"handler":     ctx.HandlerName,
				"trace_id":    ctx.TraceID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}
