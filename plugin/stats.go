package plugin

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionStats tracks one plugin's (or one hook-plugin pair's) invocation
// history. Counters use sync/atomic so the hot path never blocks on a lock;
// the percentile sample buffer is the one piece that needs a mutex, and it
// is never held while a hook is executing.
type ExecutionStats struct {
	totalExecutions      int64
	successfulExecutions int64
	failedExecutions     int64
	cancelledExecutions  int64

	mu           sync.Mutex
	samples      []int64 // recent durations in microseconds, ring buffer
	sampleHead   int
	lastError    string
	lastExecAt   time.Time
}

const statsSampleCapacity = 256

// NewExecutionStats returns a ready-to-use, zero-valued ExecutionStats.
func NewExecutionStats() *ExecutionStats {
	return &ExecutionStats{samples: make([]int64, 0, statsSampleCapacity)}
}

// RecordSuccess records a successful hook invocation's duration.
func (s *ExecutionStats) RecordSuccess(d time.Duration) {
	atomic.AddInt64(&s.totalExecutions, 1)
	atomic.AddInt64(&s.successfulExecutions, 1)
	s.recordSample(d)
}

// RecordFailure records a failed hook invocation.
func (s *ExecutionStats) RecordFailure(d time.Duration, errMsg string) {
	atomic.AddInt64(&s.totalExecutions, 1)
	atomic.AddInt64(&s.failedExecutions, 1)
	s.mu.Lock()
	s.lastError = errMsg
	s.mu.Unlock()
	s.recordSample(d)
}

// RecordCancelled records a hook invocation discarded by a timeout or a
// competing short-circuit in Parallel/Hybrid mode.
func (s *ExecutionStats) RecordCancelled() {
	atomic.AddInt64(&s.totalExecutions, 1)
	atomic.AddInt64(&s.cancelledExecutions, 1)
}

func (s *ExecutionStats) recordSample(d time.Duration) {
	micros := d.Microseconds()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastExecAt = time.Now()
	if len(s.samples) < statsSampleCapacity {
		s.samples = append(s.samples, micros)
		return
	}
	s.samples[s.sampleHead] = micros
	s.sampleHead = (s.sampleHead + 1) % statsSampleCapacity
}

// Snapshot returns a point-in-time copy of the stats in their public shape.
func (s *ExecutionStats) Snapshot() Snapshot {
	s.mu.Lock()
	samples := append([]int64(nil), s.samples...)
	lastErr := s.lastError
	lastAt := s.lastExecAt
	s.mu.Unlock()

	snap := Snapshot{
		TotalExecutions:      atomic.LoadInt64(&s.totalExecutions),
		SuccessfulExecutions: atomic.LoadInt64(&s.successfulExecutions),
		FailedExecutions:     atomic.LoadInt64(&s.failedExecutions),
		CancelledExecutions:  atomic.LoadInt64(&s.cancelledExecutions),
		LastError:            lastErr,
		LastExecutionAt:      lastAt,
	}
	if len(samples) == 0 {
		return snap
	}
	sum := int64(0)
	for _, v := range samples {
		sum += v
	}
	snap.AverageExecutionTimeMs = float64(sum) / float64(len(samples)) / 1000.0
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	idx := int(float64(len(samples)) * 0.95)
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	snap.P95ExecutionTimeMs = float64(samples[idx]) / 1000.0
	return snap
}

// Snapshot is the public, immutable view of ExecutionStats at one instant.
type Snapshot struct {
	TotalExecutions        int64
	SuccessfulExecutions    int64
	FailedExecutions        int64
	CancelledExecutions     int64
	AverageExecutionTimeMs  float64
	P95ExecutionTimeMs      float64
	LastError               string
	LastExecutionAt         time.Time
}
