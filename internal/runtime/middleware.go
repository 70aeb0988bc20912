package runtime

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	idspkg "github.com/drblury/opsflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// MiddlewareBuilder constructs a handler middleware using the provided bus.
type MiddlewareBuilder func(*Bus) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a bus router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard chain, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		AckMiddleware(),
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// AckMiddleware acknowledges every dispatch. Failures after a trace exists are
// already in the guard; a nack would only make the transport redeliver.
func AckMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "ack",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			return b.ackMiddleware(), nil
		},
	}
}

// MetricsMiddleware adds Prometheus router metrics and exposes /metrics.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			if !b.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				b.metricsRegisterer,
				"opsflow",
				"router",
			)

			metricsBuilder.AddPrometheusRouterMetrics(b.router)

			if b.Conf.MetricsPort > 0 {
				b.RegisterHTTPHandler(b.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			return b.correlationIDMiddleware(), nil
		},
	}
}

// LogMessagesMiddleware logs the envelope metadata of handled messages. Bodies
// are never logged.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return b.logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps each dispatch in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			return b.tracerMiddleware(), nil
		},
	}
}

// RecovererMiddleware converts panics outside subscriber isolation into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (b *Bus) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if b.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(b)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	b.router.AddMiddleware(mw)
	return nil
}

func (b *Bus) ackMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := h(msg)
			if err != nil {
				b.Logger.Error("Dispatch failed; acknowledging", err, loggingpkg.LogFields{
					"message_uuid": msg.UUID,
					"kind":         msg.Metadata.Get(MetadataKeyEventKind),
					"trace_id":     msg.Metadata.Get(MetadataKeyTraceID),
				})
			}
			return msgs, nil
		}
	}
}

// correlationIDMiddleware injects a correlation ID into the message metadata when missing.
func (b *Bus) correlationIDMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if msg.Metadata.Get(MetadataKeyCorrelationID) == "" {
				id := msg.Metadata.Get(MetadataKeyTraceID)
				if id == "" {
					id = idspkg.NewULID()
				}
				msg.Metadata.Set(MetadataKeyCorrelationID, id)
			}
			return h(msg)
		}
	}
}

// logMessagesMiddleware logs all processed messages with their metadata.
func (b *Bus) logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing event", loggingpkg.LogFields{
				"message_uuid":  msg.UUID,
				"kind":          msg.Metadata.Get(MetadataKeyEventKind),
				"trace_id":      msg.Metadata.Get(MetadataKeyTraceID),
				"payload_bytes": len(msg.Payload),
			})
			return h(msg)
		}
	}
}

// tracerMiddleware wraps message handling with an OpenTelemetry span.
func (b *Bus) tracerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			tracer := b.tracer()
			ctx, span := tracer.Start(msg.Context(), "DispatchEvent", trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("event.kind", msg.Metadata.Get(MetadataKeyEventKind)),
				attribute.String("event.trace_id", msg.Metadata.Get(MetadataKeyTraceID)),
				attribute.String("handler.name", message.HandlerNameFromCtx(msg.Context())),
			)
			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return msgs, err
		}
	}
}

func (b *Bus) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return otel.Tracer("opsflow-bus")
	}
	return b.tracerProvider.Tracer("opsflow-bus")
}
