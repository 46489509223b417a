package hook

import (
	"context"
	"sync"
	"testing"
)

func TestContext_RequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewContext(context.Background(), "t", nil, nil, nil)
			mu.Lock()
			defer mu.Unlock()
			if seen[c.RequestID] {
				t.Errorf("duplicate RequestID %s", c.RequestID)
			}
			seen[c.RequestID] = true
		}()
	}
	wg.Wait()
}

func TestContext_FreezeRejectsWrites(t *testing.T) {
	c := NewContext(context.Background(), "t", map[string]any{"a": 1}, nil, nil)
	c.Freeze()
	if ok := c.SetArgs(map[string]any{"b": 2}); ok {
		t.Error("SetArgs should fail after Freeze")
	}
	if c.Args["a"] != 1 {
		t.Error("Args should be unchanged after rejected write")
	}
}

func TestContext_CloneArgsIsDeep(t *testing.T) {
	c := NewContext(context.Background(), "t", map[string]any{
		"nested": map[string]any{"x": 1},
	}, nil, nil)
	clone := c.CloneArgs()
	nested := clone["nested"].(map[string]any)
	nested["x"] = 999
	orig := c.Args["nested"].(map[string]any)
	if orig["x"] != 1 {
		t.Error("mutating clone should not affect original Args")
	}
}

func TestContext_ForkIsIndependent(t *testing.T) {
	c := NewContext(context.Background(), "t", map[string]any{"a": 1}, nil, nil)
	c.SetMeta("k", "v")

	fork := c.Fork()
	fork.SetArgs(map[string]any{"a": 2, "b": 3})
	fork.SetMeta("k", "forked")

	if c.Args["a"] != 1 {
		t.Error("writing to the fork's Args should not affect the original Context")
	}
	if c.Metadata["k"] != "v" {
		t.Error("writing to the fork's Metadata should not affect the original Context")
	}
	if fork.ToolName != c.ToolName || fork.RequestID != c.RequestID {
		t.Error("Fork should share identity fields with the original Context")
	}
}

func TestCancellationSignal_CauseRetainsFirst(t *testing.T) {
	sig := NewCancellationSignal(context.Background())
	sig.Cancel(context.DeadlineExceeded)
	sig.Cancel(context.Canceled)
	if sig.Cause() != context.DeadlineExceeded {
		t.Errorf("Cause() = %v, want DeadlineExceeded", sig.Cause())
	}
	if sig.Context().Err() == nil {
		t.Error("derived context should be cancelled")
	}
}
