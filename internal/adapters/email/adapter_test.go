package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

type fakePublisher struct {
	mu         sync.Mutex
	candidates []events.IntakeCandidate
	err        error
}

func (p *fakePublisher) PublishIntake(_ context.Context, c events.IntakeCandidate) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.candidates = append(p.candidates, c)
	return fmt.Sprintf("trace-%d", len(p.candidates)), nil
}

type failingSource struct {
	listErr  error
	ids      []string
	fetchErr map[string]error
	fallback *StaticSource
}

func (s *failingSource) List(ctx context.Context, maxResults int64) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.ids, nil
}

func (s *failingSource) Fetch(ctx context.Context, id string) (RawMessage, string, error) {
	if err := s.fetchErr[id]; err != nil {
		return RawMessage{}, "", err
	}
	return s.fallback.Fetch(ctx, id)
}

type adapterFixture struct {
	adapter  *Adapter
	pub      *fakePublisher
	registry *prometheus.Registry
	logs     *watermill.CaptureLoggerAdapter
}

func newAdapterFixture(t *testing.T, src MessageSource, opts ...AdapterOption) *adapterFixture {
	t.Helper()
	capture := watermill.NewCaptureLogger()
	registry := prometheus.NewRegistry()
	pub := &fakePublisher{}

	opts = append([]AdapterOption{WithRegisterer(registry)}, opts...)
	a, err := NewAdapter(src, pub, loggingpkg.NewWatermillServiceLogger(capture), opts...)
	require.NoError(t, err)
	return &adapterFixture{adapter: a, pub: pub, registry: registry, logs: capture}
}

func (f *adapterFixture) outcome(name string) float64 {
	return testutil.ToFloat64(f.adapter.metrics.messages.WithLabelValues(name))
}

func staticMessage(id, from, subject, body string) StaticMessage {
	return StaticMessage{
		Message: RawMessage{ID: id, Headers: []Header{{Name: "From", Value: from}, {Name: "Subject", Value: subject}}},
		Body:    body,
	}
}

func TestPollPublishesHardenedCandidates(t *testing.T) {
	src := NewStaticSource(
		staticMessage("m-1", "Ops <ops@example.com>", "Server down", "urgent <b>now</b>"),
		staticMessage("m-2", "news@example.com", "Weekly", "digest"),
	)
	f := newAdapterFixture(t, src)

	summary := f.adapter.Poll(context.Background(), 5)

	assert.Equal(t, PollSummary{Listed: 2, Published: 2}, summary)
	require.Len(t, f.pub.candidates, 2)
	assert.Equal(t, events.IntakeCandidate{
		Source: "email", Sender: "ops@example.com", Subject: "Server down", Body: "urgent now", ExternalID: "m-1",
	}, f.pub.candidates[0])
	assert.Equal(t, float64(2), f.outcome(outcomePublished))
	assert.True(t, f.logs.Has(watermill.CapturedMessage{
		Level:  watermill.InfoLogLevel,
		Msg:    "Published message",
		Fields: watermill.LogFields{"component": "email_adapter", "external_id": "m-2", "trace_id": "trace-2"},
	}))
}

func TestPollRespectsMaxResults(t *testing.T) {
	src := NewStaticSource(
		staticMessage("a", "a@x.io", "s", "1"),
		staticMessage("b", "b@x.io", "s", "2"),
		staticMessage("c", "c@x.io", "s", "3"),
	)
	f := newAdapterFixture(t, src)

	summary := f.adapter.Poll(context.Background(), 2)
	assert.Equal(t, 2, summary.Listed)
	assert.Len(t, f.pub.candidates, 2)
}

func TestPollDropsMessagesThatFailHardening(t *testing.T) {
	src := NewStaticSource(
		staticMessage("empty", "a@x.io", "s", "<html></html>"),
		staticMessage("ok", "a@x.io", "s", "fine"),
		StaticMessage{Message: RawMessage{}, Body: "no id"},
	)
	f := newAdapterFixture(t, src)

	summary := f.adapter.Poll(context.Background(), 10)

	assert.Equal(t, PollSummary{Listed: 3, Published: 1, Dropped: 2}, summary)
	assert.Equal(t, float64(2), f.outcome(outcomeDropped))
}

func TestPollTreatsListFailureAsEmpty(t *testing.T) {
	boom := errors.New("quota exceeded")
	f := newAdapterFixture(t, &failingSource{listErr: boom})

	summary := f.adapter.Poll(context.Background(), 5)

	assert.Equal(t, PollSummary{}, summary)
	assert.True(t, f.logs.HasError(boom))
	assert.Equal(t, float64(1), f.outcome(outcomeListFailed))
}

func TestPollIsolatesPerMessageFailures(t *testing.T) {
	boom := errors.New("fetch failed")
	src := &failingSource{
		ids:      []string{"bad", "good"},
		fetchErr: map[string]error{"bad": boom},
		fallback: NewStaticSource(staticMessage("good", "a@x.io", "s", "body")),
	}
	f := newAdapterFixture(t, src)

	summary := f.adapter.Poll(context.Background(), 5)

	assert.Equal(t, PollSummary{Listed: 2, Published: 1, Failed: 1}, summary)
	assert.True(t, f.logs.HasError(boom))
	require.Len(t, f.pub.candidates, 1)
	assert.Equal(t, "good", f.pub.candidates[0].ExternalID)
}

func TestPollCountsPublishFailures(t *testing.T) {
	src := NewStaticSource(staticMessage("m-1", "a@x.io", "s", "body"))
	f := newAdapterFixture(t, src)
	f.pub.err = errors.New("bus closed")

	summary := f.adapter.Poll(context.Background(), 5)
	assert.Equal(t, PollSummary{Listed: 1, Failed: 1}, summary)
	assert.Equal(t, float64(1), f.outcome(outcomeFailed))
}

func TestPollSuppressesDuplicatesWithinWindow(t *testing.T) {
	src := NewStaticSource(staticMessage("m-1", "a@x.io", "s", "body"))
	f := newAdapterFixture(t, src, WithDedupWindow(time.Hour))

	first := f.adapter.Poll(context.Background(), 5)
	src.Add(staticMessage("m-2", "b@x.io", "s", "other"))
	second := f.adapter.Poll(context.Background(), 5)

	assert.Equal(t, PollSummary{Listed: 1, Published: 1}, first)
	assert.Equal(t, PollSummary{Listed: 2, Published: 1, Duplicates: 1}, second)
	assert.Len(t, f.pub.candidates, 2)
	assert.Equal(t, float64(1), f.outcome(outcomeDuplicate))
}

func TestPollRetriesMessageWhosePublishFailed(t *testing.T) {
	src := NewStaticSource(staticMessage("m-1", "a@x.io", "s", "body"))
	f := newAdapterFixture(t, src, WithDedupWindow(time.Hour))

	f.pub.err = errors.New("bus closed")
	failed := f.adapter.Poll(context.Background(), 5)
	f.pub.err = nil
	retried := f.adapter.Poll(context.Background(), 5)
	again := f.adapter.Poll(context.Background(), 5)

	assert.Equal(t, PollSummary{Listed: 1, Failed: 1}, failed)
	assert.Equal(t, PollSummary{Listed: 1, Published: 1}, retried)
	assert.Equal(t, PollSummary{Listed: 1, Duplicates: 1}, again)
	require.Len(t, f.pub.candidates, 1)
	assert.Equal(t, "m-1", f.pub.candidates[0].ExternalID)
}

func TestPollForgetsKeysAfterWindow(t *testing.T) {
	src := NewStaticSource(staticMessage("m-1", "a@x.io", "s", "body"))
	f := newAdapterFixture(t, src, WithDedupWindow(200*time.Millisecond))

	f.adapter.Poll(context.Background(), 5)
	assert.Equal(t, PollSummary{Listed: 1, Duplicates: 1}, f.adapter.Poll(context.Background(), 5))

	assert.Eventually(t, func() bool {
		return f.adapter.Poll(context.Background(), 5).Published == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPollWithoutDedupRepublishes(t *testing.T) {
	src := NewStaticSource(staticMessage("m-1", "a@x.io", "s", "body"))
	f := newAdapterFixture(t, src)

	f.adapter.Poll(context.Background(), 5)
	f.adapter.Poll(context.Background(), 5)
	assert.Len(t, f.pub.candidates, 2)
}

func TestPollStopsWhenContextIsDone(t *testing.T) {
	src := &failingSource{
		ids:      []string{"a", "b"},
		fallback: NewStaticSource(staticMessage("a", "a@x.io", "s", "1"), staticMessage("b", "b@x.io", "s", "2")),
	}
	f := newAdapterFixture(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := f.adapter.Poll(ctx, 5)

	assert.Equal(t, PollSummary{Listed: 2}, summary)
	assert.Empty(t, f.pub.candidates)
}

func TestNewAdapterValidation(t *testing.T) {
	log := loggingpkg.NewWatermillServiceLogger(watermill.NopLogger{})
	src := NewStaticSource()
	pub := &fakePublisher{}

	_, err := NewAdapter(nil, pub, log)
	assert.Error(t, err)
	_, err = NewAdapter(src, nil, log)
	assert.Error(t, err)
	_, err = NewAdapter(src, pub, nil)
	assert.Error(t, err)

	registry := prometheus.NewRegistry()
	first, err := NewAdapter(src, pub, log, WithRegisterer(registry))
	require.NoError(t, err)
	second, err := NewAdapter(src, pub, log, WithRegisterer(registry))
	require.NoError(t, err, "a second adapter reuses the registered collectors")
	assert.Same(t, first.metrics.messages, second.metrics.messages)
}
