package runtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/drblury/opsflow/internal/runtime/events"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// PanicError is reported when a subscriber panics while handling an event.
type PanicError struct {
	Subscriber string
	Value      any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Subscriber, e.Value)
}

type HandlerStats struct {
	mu sync.Mutex `json:"-"`

	MessagesProcessed   uint64    `json:"messages_processed"`
	MessagesFailed      uint64    `json:"messages_failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
	Load       LoadUsage         `json:"load"`
	Backlog    BacklogMetrics    `json:"backlog"`

	latencyWindow    *latencyWindow    `json:"-"`
	throughputWindow *throughputWindow `json:"-"`
	kind             events.Kind       `json:"-"`
	loadSampler      *loadSampler      `json:"-"`
}

// HandlerInfo describes one subscription.
type HandlerInfo struct {
	Name  string        `json:"name"`
	Kind  events.Kind   `json:"kind"`
	Order int           `json:"order"`
	Stats *HandlerStats `json:"stats"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
	TotalMessages    uint64  `json:"total_messages"`
}

type ErrorBreakdown struct {
	KindViolation uint64 `json:"kind_violation"`
	Processing    uint64 `json:"processing"`
	Panic         uint64 `json:"panic"`
	Canceled      uint64 `json:"canceled"`
	LastError     string `json:"last_error,omitempty"`
}

// LoadUsage is sampled when a dispatch finishes.
type LoadUsage struct {
	// QueuedEvents are events of this kind accepted by Publish and not yet
	// handed to the router.
	QueuedEvents  int     `json:"queued_events"`
	// PendingEvents counts every event on the bus, of any kind, that has not
	// finished dispatching.
	PendingEvents int64   `json:"pending_events"`
	CPUPercent    float64 `json:"cpu_percent"`
	HeapBytes     uint64  `json:"heap_bytes"`
	Goroutines    int     `json:"goroutines"`
}

type BacklogMetrics struct {
	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`
	// EstimatedLagMillis is the age of the last event at delivery, from its envelope timestamp.
	EstimatedLagMillis int64 `json:"estimated_lag_millis"`
}

type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = "none"
	ErrorCategoryKindViolation ErrorCategory = "kind_violation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryPanic         ErrorCategory = "panic"
	ErrorCategoryCanceled      ErrorCategory = "canceled"
)

type ErrorClassifier func(error) ErrorCategory

func newHandlerStats(kind events.Kind, sampler *loadSampler) *HandlerStats {
	return &HandlerStats{
		kind:             kind,
		loadSampler:      sampler,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		Backlog:          BacklogMetrics{EstimatedLagMillis: -1},
	}
}

type handlerInvocationContext struct {
	lagMillis int64
}

func (h *HandlerStats) onMessageStart(meta events.Envelope) handlerInvocationContext {
	lag := int64(-1)
	if meta.Timestamp > 0 {
		lag = time.Since(meta.Time()).Milliseconds()
		if lag < 0 {
			lag = 0
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.Backlog.InFlight++
	if h.Backlog.InFlight > h.Backlog.MaxInFlight {
		h.Backlog.MaxInFlight = h.Backlog.InFlight
	}

	return handlerInvocationContext{lagMillis: lag}
}

func (h *HandlerStats) onMessageFinish(ctx handlerInvocationContext, duration time.Duration, err error, classifier ErrorClassifier) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Backlog.InFlight > 0 {
		h.Backlog.InFlight--
	}
	if ctx.lagMillis >= 0 {
		h.Backlog.EstimatedLagMillis = ctx.lagMillis
	}

	h.MessagesProcessed++
	if err != nil {
		h.MessagesFailed++
	}
	h.TotalProcessingTime += int64(duration)
	h.LastProcessedAt = time.Now().UTC()

	if h.latencyWindow != nil {
		h.latencyWindow.Add(duration)
		snapshot := h.latencyWindow.Snapshot()
		snapshot.LastNs = int64(duration)
		if h.MessagesProcessed > 0 {
			snapshot.AverageNs = h.TotalProcessingTime / int64(h.MessagesProcessed)
		}
		h.Latency = snapshot
	}

	if h.throughputWindow != nil {
		snapshot := h.throughputWindow.AddAndSnapshot(time.Now())
		h.Throughput.CurrentRPS = snapshot.CurrentRPS
		h.Throughput.WindowSeconds = snapshot.WindowSeconds
		h.Throughput.MessagesInWindow = uint64(snapshot.Count)
	}
	h.Throughput.TotalMessages = h.MessagesProcessed

	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	h.Errors.Record(classifier(err), err)

	if h.loadSampler != nil {
		h.Load = h.loadSampler.Snapshot(h.kind)
	}
}

// Counts returns the processed and failed totals.
func (h *HandlerStats) Counts() (processed, failed uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.MessagesProcessed, h.MessagesFailed
}

func (h *HandlerStats) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	type Alias HandlerStats
	return sonic.ConfigStd.Marshal((*Alias)(h))
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Processing++
	case ErrorCategoryKindViolation:
		e.KindViolation++
	case ErrorCategoryPanic:
		e.Panic++
	case ErrorCategoryCanceled:
		e.Canceled++
	default:
		e.Processing++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, now)
	tw.cleanup(now)
	return tw.snapshot(now)
}

func (tw *throughputWindow) cleanup(now time.Time) {
	if len(tw.samples) == 0 {
		return
	}
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
}

func (tw *throughputWindow) snapshot(now time.Time) throughputSnapshot {
	if len(tw.samples) == 0 {
		return throughputSnapshot{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var violation *events.KindViolationError
	if errors.As(err, &violation) {
		return ErrorCategoryKindViolation
	}
	var panicked *PanicError
	if errors.As(err, &panicked) {
		return ErrorCategoryPanic
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	return ErrorCategoryProcessing
}
