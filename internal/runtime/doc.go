/*
Package runtime provides the in-process event bus for opsflow.

# Architecture Overview

The bus is built on a Watermill router over a GoChannel pub/sub. Every event
kind has its own topic and exactly one router handler. That handler decodes the
payload, checks its schema version, and fans the event out to the subscriptions
registered for the kind, in registration order.

A subscription never sees an event of a foreign kind. Any error or panic raised
by a subscriber is recovered and reported to the boundary guard, which marks the
event's trace as failed. Other subscribers, and other traces, are unaffected.

# Package Structure

## Bus (bus.go, subscribe.go, publisher.go)

  - NewBus wires the transport, router, middleware chain and one handler per kind
  - Subscribe registers a typed subscription for a single kind
  - Publish validates the envelope and hands the event to its kind's topic
  - Run starts the router and HTTP servers; Close stops them

## Gateway (gateway.go)

The Gateway stamps external input with a new trace and the pinned schema
version before publishing it as an intake event.

## Middleware (middleware.go, hooks.go)

  - Ack: every dispatch is acknowledged, failures never redeliver
  - CorrelationID: ensures message traceability
  - LogMessages: debug logging of envelope metadata, never bodies
  - Tracer: OpenTelemetry spans
  - Metrics: Prometheus router metrics
  - Recoverer: panic recovery outside subscriber isolation
  - JobHooks: lifecycle callbacks around each dispatch

## Stats & Monitoring (models.go, metrics.go, resources.go, webui.go)

Per-subscription latency, throughput and error breakdowns, Prometheus counters
for publishes, deliveries and refusals, and an HTTP API listing subscriptions
and failed traces.

# Sub-packages

  - boundary/: the trace failure registry
  - config/: environment configuration with validation
  - errors/: sentinel errors and error types
  - events/: the envelope, event variants and wire codec
  - ids/: ULID trace and message identifiers
  - logging/: logger interface and adapters
  - transport/: pub/sub construction

# Usage Example

	guard, _ := boundary.New(logger)
	bus, _ := runtime.NewBus(ctx, cfg, logger, guard, runtime.BusDependencies{})

	runtime.Subscribe(bus, "classifier", func(ctx context.Context, evt events.IntakeEvent) error {
		return nil
	})

	go bus.Run(ctx)
	<-bus.Running()

	gw, _ := runtime.NewGateway(bus)
	traceID, err := gw.PublishIntake(ctx, candidate)
*/
package runtime
