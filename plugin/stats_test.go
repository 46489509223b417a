package plugin

import (
	"testing"
	"time"
)

func TestExecutionStats_RecordsCounters(t *testing.T) {
	s := NewExecutionStats()
	s.RecordSuccess(10 * time.Millisecond)
	s.RecordSuccess(20 * time.Millisecond)
	s.RecordFailure(5*time.Millisecond, "boom")
	s.RecordCancelled()

	snap := s.Snapshot()
	if snap.TotalExecutions != 4 {
		t.Errorf("total = %d, want 4", snap.TotalExecutions)
	}
	if snap.SuccessfulExecutions != 2 {
		t.Errorf("success = %d, want 2", snap.SuccessfulExecutions)
	}
	if snap.FailedExecutions != 1 {
		t.Errorf("failed = %d, want 1", snap.FailedExecutions)
	}
	if snap.CancelledExecutions != 1 {
		t.Errorf("cancelled = %d, want 1", snap.CancelledExecutions)
	}
	if snap.LastError != "boom" {
		t.Errorf("lastError = %q, want boom", snap.LastError)
	}
}

func TestExecutionStats_AverageAndP95(t *testing.T) {
	s := NewExecutionStats()
	for i := 1; i <= 100; i++ {
		s.RecordSuccess(time.Duration(i) * time.Millisecond)
	}
	snap := s.Snapshot()
	if snap.AverageExecutionTimeMs < 49 || snap.AverageExecutionTimeMs > 51 {
		t.Errorf("average = %v, want ~50.5", snap.AverageExecutionTimeMs)
	}
	if snap.P95ExecutionTimeMs < 94 || snap.P95ExecutionTimeMs > 97 {
		t.Errorf("p95 = %v, want ~95", snap.P95ExecutionTimeMs)
	}
}

func TestExecutionStats_RingBufferCaps(t *testing.T) {
	s := NewExecutionStats()
	for i := 0; i < statsSampleCapacity+50; i++ {
		s.RecordSuccess(time.Millisecond)
	}
	snap := s.Snapshot()
	if snap.TotalExecutions != int64(statsSampleCapacity+50) {
		t.Errorf("total = %d", snap.TotalExecutions)
	}
	if len(s.samples) != statsSampleCapacity {
		t.Errorf("sample buffer len = %d, want capped at %d", len(s.samples), statsSampleCapacity)
	}
}
