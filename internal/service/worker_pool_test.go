package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsEverySubmittedJob(t *testing.T) {
	pool := NewWorkerPool(3, 8, zerolog.Nop())

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		ok := pool.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
		require.True(t, ok)
	}

	wg.Wait()
	pool.Close()
	require.Equal(t, int64(50), atomic.LoadInt64(&counter))
}

func TestWorkerPoolSubmitNeverBlocksWhenQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, zerolog.Nop())
	defer pool.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup

	// Occupy the single worker and fill the queue slot.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		done := make(chan bool, 1)
		go func() {
			done <- pool.Submit(func(ctx context.Context) {
				defer wg.Done()
				<-release
			})
		}()

		select {
		case ok := <-done:
			require.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Submit blocked with a full queue")
		}
	}

	close(release)
	wg.Wait()
}

func TestWorkerPoolRejectsAfterClose(t *testing.T) {
	pool := NewWorkerPool(2, 2, zerolog.Nop())
	pool.Close()

	ok := pool.Submit(func(ctx context.Context) {})
	require.False(t, ok)
}

func TestWorkerPoolRecoversPanickingJob(t *testing.T) {
	pool := NewWorkerPool(1, 0, zerolog.Nop())

	var ran int64
	var wg sync.WaitGroup
	wg.Add(2)
	pool.Submit(func(ctx context.Context) {
		defer wg.Done()
		panic("boom")
	})
	pool.Submit(func(ctx context.Context) {
		defer wg.Done()
		atomic.AddInt64(&ran, 1)
	})

	wg.Wait()
	pool.Close()
	require.Equal(t, int64(1), atomic.LoadInt64(&ran))
}

func TestWorkerPoolContextOutlivesSubmit(t *testing.T) {
	pool := NewWorkerPool(1, 1, zerolog.Nop())
	defer pool.Close()

	errCh := make(chan error, 1)
	pool.Submit(func(ctx context.Context) {
		errCh <- ctx.Err()
	})

	select {
	case err := <-errCh:
		require.NoError(t, err, "job context must not be canceled while the pool is open")
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}
