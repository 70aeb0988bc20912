// Package opsflow is a lawful email ingestion pipeline built on Watermill.
//
// Every message read from the mailbox is hardened into an Intake event and
// routed over a kind-scoped Bus: each subscription declares exactly one event
// kind, and the bus refuses to deliver anything else. Events carry a pinned
// schema version and a trace identifier; the Gateway is the only place where
// a trace is opened, and every later event follows the trace of the event
// that caused it.
//
// A failing subscriber never crashes the process. Its error or panic is
// recorded against the trace on the Guard, and other subscribers keep
// receiving events.
//
// # Pipeline
//
// The default wiring assembled by NewApp is:
//
//	mailbox -> hardening -> Gateway -> INTAKE_EVENT
//	        -> ClassificationAgent -> CLASSIFICATION_EVENT
//	        -> planner, approval and execution stubs
//
// Each stage only subscribes to the kind it consumes:
//
//	err := opsflow.Subscribe(bus, "audit", func(ctx context.Context, evt opsflow.ClassificationEvent) error {
//		log.Info("classified", opsflow.LogFields{"trace_id": evt.TraceID, "priority": evt.Priority})
//		return nil
//	})
//
// # Hardening
//
// Harden strips control characters and markup, replaces invalid UTF-8 and
// caps the body at MaxBodyRunes characters. Messages whose body is empty
// after hardening are dropped before they reach the bus.
//
// # Observability
//
// The bus keeps per-subscription statistics (see Bus.Handlers), exports
// Prometheus counters and opens an OpenTelemetry span per dispatch. The
// optional web UI serves the handler table and the failed traces as JSON.
package opsflow
