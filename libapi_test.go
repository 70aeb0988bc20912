package opsflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
)

func TestSubscribeExportRoutesByKind(t *testing.T) {
	log := NewWatermillServiceLogger(watermill.NopLogger{})
	registry := prometheus.NewRegistry()
	guard, err := NewGuard(log, WithRetention(16), WithGuardRegisterer(registry))
	if err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	bus, err := NewBus(context.Background(), DefaultConfig(), log, guard, BusDependencies{MetricsRegisterer: registry})
	if err != nil {
		t.Fatalf("unexpected bus error: %v", err)
	}
	defer bus.Close()

	got := make(chan IntakeEvent, 1)
	if err := Subscribe(bus, "intake-watch", func(_ context.Context, evt IntakeEvent) error {
		got <- evt
		return nil
	}); err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	if err := Subscribe(bus, "intake-watch", func(context.Context, IntakeEvent) error { return nil }); !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected duplicate subscription error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	<-bus.Running()

	gw, err := NewGateway(bus, WithTraceIDSource(func() string { return "trace-lib" }))
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}
	traceID, err := gw.PublishIntake(ctx, IntakeCandidate{Source: "email", Sender: "a@example.com", Subject: "Hi", Body: "hello", ExternalID: "x-1"})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if traceID != "trace-lib" {
		t.Fatalf("expected trace-lib, got %q", traceID)
	}

	select {
	case evt := <-got:
		if evt.Kind != KindIntake || evt.SchemaVersion != VersionPin || evt.TraceID != "trace-lib" {
			t.Fatalf("unexpected envelope %+v", evt.Envelope)
		}
	case <-ctx.Done():
		t.Fatal("intake event was not delivered")
	}
}

func TestPureHelperExports(t *testing.T) {
	body, ok := Harden("<b>Hello</b>\x00 world")
	if !ok || body != "Hello world" {
		t.Fatalf("unexpected hardened body %q (%v)", body, ok)
	}
	if p, _ := Classify("URGENT", "x@example.com", "now"); p != PriorityHigh {
		t.Fatalf("expected high priority, got %q", p)
	}
	if len(Kinds()) != 5 {
		t.Fatalf("expected five kinds, got %v", Kinds())
	}
}
