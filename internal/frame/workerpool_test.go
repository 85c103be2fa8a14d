package frame

import (
	"context"
	"sync"
	"testing"

	"github.com/spaghettifunk/vixen/internal/memory"
)

func TestWorkerPoolRecordsEveryNodeExactlyOnce(t *testing.T) {
	pool, err := NewWorkerPool(4, 8, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Shutdown()

	var mu sync.Mutex
	seen := make(map[string]int)
	nodes := []string{"a", "b", "c", "d", "e", "f"}
	err = pool.RecordWave(context.Background(), nodes, func(name string) error {
		mu.Lock()
		seen[name]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected RecordWave error: %v", err)
	}
	for _, n := range nodes {
		if seen[n] != 1 {
			t.Fatalf("node %q recorded %d times, want 1", n, seen[n])
		}
	}
}

func TestWorkerPoolPropagatesFirstError(t *testing.T) {
	pool, err := NewWorkerPool(2, 4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Shutdown()

	boom := errNodeFailed("boom")
	err = pool.RecordWave(context.Background(), []string{"a", "b"}, func(name string) error {
		if name == "b" {
			return boom
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected an error from RecordWave")
	}
}

func TestNewWorkerPoolRejectsNonPositiveWorkerCount(t *testing.T) {
	if _, err := NewWorkerPool(0, 1, nil); err == nil {
		t.Fatalf("expected error for 0 workers")
	}
	if _, err := NewWorkerPool(-1, 1, nil); err == nil {
		t.Fatalf("expected error for negative workers")
	}
}

func TestWorkerPoolThrottleIfNeededNoopsWithoutBudget(t *testing.T) {
	pool, err := NewWorkerPool(1, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Shutdown()
	pool.throttleIfNeeded() // must not panic with a nil budget
}

func TestWorkerPoolThrottleYieldsOverSoftLimit(t *testing.T) {
	budget := memory.NewBudget(map[memory.Class][2]uint64{
		memory.ClassDeviceLocal: {0, 1 << 20},
	})
	if _, err := budget.Reserve(memory.ClassDeviceLocal, 1 << 20); err != nil {
		t.Fatalf("unexpected error priming budget: %v", err)
	}
	pool, err := NewWorkerPool(1, 1, budget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Shutdown()
	pool.throttleIfNeeded() // soft limit is 0, so every reservation throttles; must not hang
}

type errNodeFailed string

func (e errNodeFailed) Error() string { return string(e) }
