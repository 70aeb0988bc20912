package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/opsflow/internal/runtime/events"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

// kindQueue is the unbounded FIFO between Publish and one kind's topic.
type kindQueue struct {
	kind events.Kind

	mu     sync.Mutex
	items  []*message.Message
	closed bool
	ready  chan struct{}
}

func newKindQueue(kind events.Kind) *kindQueue {
	return &kindQueue{kind: kind, ready: make(chan struct{}, 1)}
}

// push enqueues msg and reports false once the queue is closed.
func (q *kindQueue) push(msg *message.Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

func (q *kindQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *kindQueue) drain() []*message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// close stops accepting messages and returns the ones never sent.
func (q *kindQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	dropped := len(q.items)
	q.items = nil
	return dropped
}

// pump forwards queued messages to the kind's topic one at a time. The
// transport blocks each publish until the dispatch is acked.
func (b *Bus) pump(ctx context.Context, q *kindQueue) {
	topic := string(q.kind)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closing:
			return
		case <-q.ready:
		}

		items := q.drain()
		for i, msg := range items {
			if ctx.Err() != nil || b.isClosing() {
				b.pending.Add(-int64(len(items) - i))
				return
			}
			if err := b.publisher.Publish(topic, msg); err != nil {
				b.Logger.Error("Failed to forward event", err, loggingpkg.LogFields{
					"kind":     topic,
					"trace_id": msg.Metadata.Get(MetadataKeyTraceID),
				})
			}
			b.pending.Add(-1)
		}
	}
}

// Drain blocks until every published event has been dispatched, including
// events published by subscribers while draining, or until ctx is done.
func (b *Bus) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (b *Bus) startPumps(ctx context.Context) {
	for _, kind := range events.Kinds() {
		go b.pump(ctx, b.queues[kind])
	}
}
