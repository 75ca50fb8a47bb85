package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"desk-assistant-go/internal/logger"
)

func TestRunReturnsTaskError(t *testing.T) {
	p := NewPool(2, 0, logger.Discard(), nil)
	defer p.Stop()

	boom := errors.New("boom")
	res := p.Run(context.Background(), "fail", func(ctx context.Context) error { return boom })
	if !errors.Is(res.Err, boom) {
		t.Errorf("err = %v, want boom", res.Err)
	}
	if res.JobID == "" || res.Name != "fail" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestTasksRunConcurrentlyUpToWorkerCount(t *testing.T) {
	const workers = 3
	p := NewPool(workers, 0, logger.Discard(), nil)
	defer p.Stop()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		ch, err := p.Submit(context.Background(), "sleep", func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ch
		}()
	}
	wg.Wait()

	if peak > workers {
		t.Errorf("peak concurrency = %d, want <= %d", peak, workers)
	}
}

func TestTaskTimeout(t *testing.T) {
	p := NewPool(1, 20*time.Millisecond, logger.Discard(), nil)
	defer p.Stop()

	res := p.Run(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", res.Err)
	}
}

func TestCancelledTaskIsSkipped(t *testing.T) {
	p := NewPool(1, 0, logger.Discard(), nil)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res := p.Run(ctx, "skipped", func(ctx context.Context) error {
		called = true
		return nil
	})
	if res.Err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if called {
		t.Error("task ran on a cancelled context")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	p := NewPool(1, 0, logger.Discard(), nil)
	defer p.Stop()

	res := p.Run(context.Background(), "panic", func(ctx context.Context) error { panic("bad input") })
	if res.Err == nil {
		t.Fatal("expected error from panicking task")
	}
	// The worker must survive the panic.
	if res := p.Run(context.Background(), "after", func(ctx context.Context) error { return nil }); res.Err != nil {
		t.Errorf("pool unusable after panic: %v", res.Err)
	}
}

func TestDoneHookAndStop(t *testing.T) {
	var done int32
	p := NewPool(2, 0, logger.Discard(), func(Result) { atomic.AddInt32(&done, 1) })

	for i := 0; i < 5; i++ {
		if _, err := p.Submit(context.Background(), "noop", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	p.Stop()

	if got := atomic.LoadInt32(&done); got != 5 {
		t.Errorf("done hook calls = %d, want 5", got)
	}
	if _, err := p.Submit(context.Background(), "late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Stop err = %v, want ErrPoolClosed", err)
	}
	p.Stop()
}
