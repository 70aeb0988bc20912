package runtime

import (
	"runtime/metrics"
	"sync"

	"github.com/drblury/opsflow/internal/runtime/events"
)

const (
	metricCPUTotal   = "/cpu/classes/total:cpu-seconds"
	metricCPUIdle    = "/cpu/classes/idle:cpu-seconds"
	metricHeapBytes  = "/memory/classes/heap/objects:bytes"
	metricGoroutines = "/sched/goroutines:goroutines"
)

// loadSampler reports how loaded the bus is when a dispatch finishes: the
// events still waiting in the kind's queue, the events accepted by the bus
// and not yet dispatched, and coarse process figures from runtime/metrics.
type loadSampler struct {
	queued  func(events.Kind) int
	pending func() int64

	mu        sync.Mutex
	samples   []metrics.Sample
	lastTotal float64
	lastIdle  float64
}

func newLoadSampler(queued func(events.Kind) int, pending func() int64) *loadSampler {
	return &loadSampler{
		queued:  queued,
		pending: pending,
		samples: []metrics.Sample{
			{Name: metricCPUTotal},
			{Name: metricCPUIdle},
			{Name: metricHeapBytes},
			{Name: metricGoroutines},
		},
	}
}

// Snapshot samples the load seen by a subscription of kind.
func (s *loadSampler) Snapshot(kind events.Kind) LoadUsage {
	if s == nil {
		return LoadUsage{}
	}

	var usage LoadUsage
	if s.queued != nil {
		usage.QueuedEvents = s.queued(kind)
	}
	if s.pending != nil {
		usage.PendingEvents = s.pending()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.Read(s.samples)
	total, haveTotal := float64Sample(s.samples[0])
	idle, haveIdle := float64Sample(s.samples[1])
	if haveTotal && haveIdle {
		if dTotal := total - s.lastTotal; s.lastTotal > 0 && dTotal > 0 {
			busy := dTotal - (idle - s.lastIdle)
			usage.CPUPercent = clampPercent(busy / dTotal * 100)
		}
		s.lastTotal, s.lastIdle = total, idle
	}
	usage.HeapBytes, _ = uint64Sample(s.samples[2])
	goroutines, _ := uint64Sample(s.samples[3])
	usage.Goroutines = int(goroutines)
	return usage
}

func float64Sample(s metrics.Sample) (float64, bool) {
	if s.Value.Kind() != metrics.KindFloat64 {
		return 0, false
	}
	return s.Value.Float64(), true
}

func uint64Sample(s metrics.Sample) (uint64, bool) {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0, false
	}
	return s.Value.Uint64(), true
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Load reports the current load seen by each kind.
func (b *Bus) Load() map[events.Kind]LoadUsage {
	out := make(map[events.Kind]LoadUsage, len(b.queues))
	for _, kind := range events.Kinds() {
		out[kind] = b.load.Snapshot(kind)
	}
	return out
}

func (b *Bus) queuedEvents(kind events.Kind) int {
	q, ok := b.queues[kind]
	if !ok {
		return 0
	}
	return q.len()
}
