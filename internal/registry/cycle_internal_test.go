package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCycleLock_WaitIsCancellable(t *testing.T) {
	r, err := New(Config{MaxCachedModels: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Register(context.Background(), RegisterRequest{Name: "a", SizeBytes: 1}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Simulate a cycle in progress.
	if !r.cycle.TryAcquire(1) {
		t.Fatalf("cycle lock unexpectedly held")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = r.Register(ctx, RegisterRequest{Name: "b", SizeBytes: 1})
	if !IsCancelled(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("register did not wait for the cycle lock")
	}
	if _, ok := r.Peek("a"); !ok {
		t.Fatalf("cancelled register must leave state untouched")
	}
	if _, ok := r.Peek("b"); ok {
		t.Fatalf("cancelled register must not insert")
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Register(context.Background(), RegisterRequest{Name: "b", SizeBytes: 1})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	r.cycle.Release(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("register after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("register still blocked after release")
	}
	if _, ok := r.Peek("a"); ok {
		t.Fatalf("a should have been evicted for b")
	}
}

func TestPolicyOrder_TiesFallBackToInsertion(t *testing.T) {
	ts := time.Unix(100, 0)
	mk := func(seq uint64) candidate {
		e := &entry{seq: seq, info: ModelInfo{LoadedAt: ts, SizeBytes: 5}}
		e.lastAccess.Store(ts.UnixNano())
		return candidate{e: e, info: e.snapshot()}
	}
	for _, p := range Policies {
		cs := []candidate{mk(3), mk(1), mk(2)}
		p.order(cs)
		for i, c := range cs {
			if c.e.seq != uint64(i+1) {
				t.Fatalf("%s: position %d has seq %d", p, i, c.e.seq)
			}
		}
	}
}
