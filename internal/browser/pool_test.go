package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTab is a controllable Tab for pool tests.
type fakeTab struct {
	healthy int32 // 1 = healthy
	closed  int32
}

func newFakeTab() *fakeTab { return &fakeTab{healthy: 1} }

func (t *fakeTab) Navigate(context.Context, string) error { return nil }
func (t *fakeTab) WaitSelector(context.Context, string, time.Duration) error {
	return nil
}
func (t *fakeTab) HTML(context.Context) (string, error) { return "<html></html>", nil }
func (t *fakeTab) Healthy() bool                        { return atomic.LoadInt32(&t.healthy) == 1 }
func (t *fakeTab) Close() error {
	atomic.StoreInt32(&t.closed, 1)
	return nil
}

func (t *fakeTab) kill() { atomic.StoreInt32(&t.healthy, 0) }

// countingFactory tracks how many tabs were created.
type countingFactory struct {
	created int32
	err     error
}

func (f *countingFactory) factory(context.Context) (Tab, error) {
	if f.err != nil {
		return nil, f.err
	}
	atomic.AddInt32(&f.created, 1)
	return newFakeTab(), nil
}

func TestPoolAcquireRelease(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if stats := pool.Stats(); stats.InUse != 1 || stats.Available != 1 {
		t.Errorf("stats after acquire = %+v", stats)
	}

	pool.Release(res)
	if stats := pool.Stats(); stats.InUse != 0 || stats.Available != 2 {
		t.Errorf("stats after release = %+v", stats)
	}
}

func TestPoolPrewarmFailureTearsDown(t *testing.T) {
	f := &countingFactory{err: errors.New("chrome missing")}
	if _, err := NewPool(f.factory, 2); err == nil {
		t.Fatal("expected pre-warm failure")
	}
}

func TestPoolConcurrentLeaseExclusivity(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	var inUse int32
	var maxInUse int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := pool.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			cur := atomic.AddInt32(&inUse, 1)
			for {
				prev := atomic.LoadInt32(&maxInUse)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxInUse, prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inUse, -1)
			pool.Release(res)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInUse); got > 2 {
		t.Errorf("concurrent leases peaked at %d, pool size is 2", got)
	}
	if stats := pool.Stats(); stats.Available != 2 || stats.InUse != 0 {
		t.Errorf("pool not fully returned: %+v", stats)
	}
}

func TestPoolDoubleReleaseIsNoop(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(res)
	pool.Release(res)

	if stats := pool.Stats(); stats.Available != 2 || stats.InUse != 0 {
		t.Errorf("double release corrupted pool: %+v", stats)
	}
}

func TestPoolReplacesCrashedTab(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	res.MarkCrashed()
	pool.Release(res)

	if stats := pool.Stats(); stats.Replacements != 1 {
		t.Errorf("Replacements = %d, want 1", stats.Replacements)
	}
	// The replacement must be usable.
	res2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after replacement: %v", err)
	}
	if !res2.Tab().Healthy() {
		t.Error("replacement tab unhealthy")
	}
	pool.Release(res2)

	if got := atomic.LoadInt32(&f.created); got != 2 {
		t.Errorf("tabs created = %d, want 2 (initial + replacement)", got)
	}
}

func TestPoolReplacesUnhealthyOnAcquire(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	tab := res.Tab().(*fakeTab)
	pool.Release(res)
	tab.kill() // dies while parked on the free list

	res2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(res2)
	if !res2.Tab().Healthy() {
		t.Error("acquired an unhealthy tab")
	}
}

func TestPoolReplacementBudget(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 1, WithMaxReplacements(1))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, _ := pool.Acquire(context.Background())
	res.MarkCrashed()
	pool.Release(res) // replacement 1, within budget

	res2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	res2.Tab().(*fakeTab).kill()
	pool.Release(res2) // replacement 2 exceeds the budget

	// The pool can never regain its lost capacity, so the failure must
	// report degradation immediately rather than time out waiting.
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolDegraded) {
		t.Errorf("err = %v, want ErrPoolDegraded", err)
	}
}

func TestPoolAcquireTimeout(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 1, WithAcquireTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.CloseAll()

	res, _ := pool.Acquire(context.Background())
	defer pool.Release(res)

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestPoolCloseAllIdempotent(t *testing.T) {
	f := &countingFactory{}
	pool, err := NewPool(f.factory, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	res, _ := pool.Acquire(context.Background())
	tab := res.Tab().(*fakeTab)

	pool.CloseAll()
	pool.CloseAll()

	if atomic.LoadInt32(&tab.closed) != 1 {
		t.Error("leased tab not closed by CloseAll")
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
	// Releasing after close must not panic or resurrect the lease.
	pool.Release(res)
}
