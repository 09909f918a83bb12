package workerpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tubego/internal/workerpool"
)

func TestSubmitReturnsValue(t *testing.T) {
	pool := workerpool.New(2, nil)
	defer pool.Close()

	f := workerpool.Submit(pool, context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})
	got, err := f.Wait(context.Background())
	if err != nil || got != "ok" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	pool := workerpool.New(size, nil)
	defer pool.Close()

	var current, peak atomic.Int32
	release := make(chan struct{})
	var futures []*workerpool.Future[struct{}]
	for range 10 {
		futures = append(futures, workerpool.Go(pool, context.Background(), func(context.Context) error {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil
		}))
	}

	deadline := time.After(2 * time.Second)
	for {
		stats := pool.Stats()
		if stats.Running == size && stats.Queued == 10-size {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pool never saturated: %+v", stats)
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)
	for _, f := range futures {
		if _, err := f.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if peak.Load() != size {
		t.Fatalf("expected peak concurrency %d, got %d", size, peak.Load())
	}
}

func TestSubmitDoesNotBlockWhenSaturated(t *testing.T) {
	pool := workerpool.New(1, nil)
	defer pool.Close()
	block := make(chan struct{})
	defer close(block)

	workerpool.Go(pool, context.Background(), func(context.Context) error {
		<-block
		return nil
	})
	done := make(chan struct{})
	go func() {
		for range 50 {
			workerpool.Go(pool, context.Background(), func(context.Context) error { return nil })
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a saturated pool")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	pool := workerpool.New(1, nil)
	defer pool.Close()
	block := make(chan struct{})
	defer close(block)

	f := workerpool.Go(pool, context.Background(), func(context.Context) error {
		<-block
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCancelledContextSkipsQueuedJob(t *testing.T) {
	pool := workerpool.New(1, nil)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	f := workerpool.Go(pool, ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if _, err := f.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran.Load() {
		t.Fatal("job ran with a cancelled context")
	}
}

func TestCloseRejectsPendingAndNewWork(t *testing.T) {
	pool := workerpool.New(1, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	running := workerpool.Go(pool, context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	queued := workerpool.Go(pool, context.Background(), func(context.Context) error { return nil })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Close()
	}()
	if _, err := queued.Wait(context.Background()); !errors.Is(err, workerpool.ErrClosed) {
		t.Fatalf("expected queued job to fail with ErrClosed, got %v", err)
	}
	close(release)
	wg.Wait()
	if _, err := running.Wait(context.Background()); err != nil {
		t.Fatalf("running job should finish normally, got %v", err)
	}
	late := workerpool.Go(pool, context.Background(), func(context.Context) error { return nil })
	if _, err := late.Wait(context.Background()); !errors.Is(err, workerpool.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestPanicIsReportedAsError(t *testing.T) {
	pool := workerpool.New(1, nil)
	defer pool.Close()
	f := workerpool.Go(pool, context.Background(), func(context.Context) error {
		panic("boom")
	})
	if _, err := f.Wait(context.Background()); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	ok := workerpool.Submit(pool, context.Background(), func(context.Context) (int, error) { return 7, nil })
	if v, err := ok.Wait(context.Background()); err != nil || v != 7 {
		t.Fatalf("pool unusable after panic: %v %v", v, err)
	}
}
