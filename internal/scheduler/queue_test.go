package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"botfleet/internal/entities"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(kind Kind, target, priority int, h Handler) *Job {
	return &Job{
		ID:       uuid.New().String(),
		Kind:     kind,
		Target:   target,
		Priority: priority,
		target:   targetBot,
		run:      h,
	}
}

func wait(t *testing.T, j *Job) error {
	t.Helper()
	select {
	case <-j.Done():
		return j.Err()
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", j.ID)
		return nil
	}
}

func TestSameTargetRunsInSubmissionOrder(t *testing.T) {
	q := NewQueue("test", 4, zerolog.Nop(), nil)
	defer q.Drain()

	var mu sync.Mutex
	var order []int
	var inflight, maxInflight int

	mkHandler := func(n int) Handler {
		return func(ctx context.Context, _ int) error {
			mu.Lock()
			inflight++
			if inflight > maxInflight {
				maxInflight = inflight
			}
			order = append(order, n)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inflight--
			mu.Unlock()
			return nil
		}
	}

	ctx := context.Background()
	jobs := []*Job{
		testJob(KindStartBot, 7, PriorityNormal, mkHandler(1)),
		testJob(KindStopBot, 7, PriorityNormal, mkHandler(2)),
		testJob(KindRestartBot, 7, PriorityNormal, mkHandler(3)),
	}
	for _, j := range jobs {
		q.Enqueue(ctx, j)
	}
	for _, j := range jobs {
		require.NoError(t, wait(t, j))
	}

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 1, maxInflight, "same-target jobs must never overlap")
}

func TestPriorityJumpsQueuedWork(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	blocker := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		<-release
		return nil
	})
	ctx := context.Background()
	q.Enqueue(ctx, blocker)

	normal := testJob(KindStartBot, 2, PriorityNormal, func(ctx context.Context, _ int) error {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		return nil
	})
	emergency := testJob(KindRestartBot, 3, PriorityEmergency, func(ctx context.Context, _ int) error {
		mu.Lock()
		order = append(order, "emergency")
		mu.Unlock()
		return nil
	})
	q.Enqueue(ctx, normal)
	q.Enqueue(ctx, emergency)

	close(release)
	require.NoError(t, wait(t, blocker))
	require.NoError(t, wait(t, normal))
	require.NoError(t, wait(t, emergency))

	assert.Equal(t, []string{"emergency", "normal"}, order)
}

func TestConcurrencyBound(t *testing.T) {
	const workers = 2
	q := NewQueue("test", workers, zerolog.Nop(), nil)
	defer q.Drain()

	var mu sync.Mutex
	var inflight, maxInflight int

	ctx := context.Background()
	var jobs []*Job
	for i := 0; i < 8; i++ {
		j := testJob(KindStartBot, 100+i, PriorityNormal, func(ctx context.Context, _ int) error {
			mu.Lock()
			inflight++
			if inflight > maxInflight {
				maxInflight = inflight
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inflight--
			mu.Unlock()
			return nil
		})
		jobs = append(jobs, j)
		q.Enqueue(ctx, j)
	}
	for _, j := range jobs {
		require.NoError(t, wait(t, j))
	}
	assert.LessOrEqual(t, maxInflight, workers)
	assert.Equal(t, workers, maxInflight, "queue should use all workers")
}

func TestPanicDoesNotKillTheQueue(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	ctx := context.Background()
	bad := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		panic("boom")
	})
	q.Enqueue(ctx, bad)
	err := wait(t, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	good := testJob(KindStartBot, 2, PriorityNormal, func(ctx context.Context, _ int) error {
		return nil
	})
	q.Enqueue(ctx, good)
	assert.NoError(t, wait(t, good))
}

func TestFailedJobIsRedelivered(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	var mu sync.Mutex
	attempts := 0
	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	j.MaxRetries = 1
	q.Enqueue(context.Background(), j)

	require.NoError(t, wait(t, j))
	assert.Equal(t, 2, attempts)
}

func TestRetryBudgetExhausted(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	var mu sync.Mutex
	attempts := 0
	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("permanent")
	})
	j.MaxRetries = 1
	q.Enqueue(context.Background(), j)

	err := wait(t, j)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSoftLimitCancelsHandlerContext(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	j.SoftLimit = 20 * time.Millisecond
	j.HardLimit = time.Second
	q.Enqueue(context.Background(), j)

	err := wait(t, j)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHardLimitAbandonsHandler(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		time.Sleep(500 * time.Millisecond) // ignores cancellation
		return nil
	})
	j.SoftLimit = 10 * time.Millisecond
	j.HardLimit = 30 * time.Millisecond
	q.Enqueue(context.Background(), j)

	err := wait(t, j)
	assert.ErrorIs(t, err, entities.ErrTimeout)
}

func TestHardLimitExpiryIsNotRetried(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	defer q.Drain()

	var attempts atomic.Int32
	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		attempts.Add(1)
		time.Sleep(500 * time.Millisecond) // ignores cancellation
		return nil
	})
	j.SoftLimit = 10 * time.Millisecond
	j.HardLimit = 30 * time.Millisecond
	j.MaxRetries = 2
	q.Enqueue(context.Background(), j)

	err := wait(t, j)
	assert.ErrorIs(t, err, entities.ErrTimeout)
	assert.Equal(t, int32(1), attempts.Load(),
		"an abandoned handler may still be running, the job must not rerun")
}

func TestDrainFailsPendingJobs(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)

	release := make(chan struct{})
	blocker := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		<-release
		return nil
	})
	queued := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		return nil
	})
	ctx := context.Background()
	q.Enqueue(ctx, blocker)
	q.Enqueue(ctx, queued)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	q.Drain()

	assert.NoError(t, blocker.Err())
	assert.Error(t, queued.Err())
}

func TestEnqueueAfterDrainFailsJob(t *testing.T) {
	q := NewQueue("test", 1, zerolog.Nop(), nil)
	q.Drain()

	j := testJob(KindStartBot, 1, PriorityNormal, func(ctx context.Context, _ int) error {
		return nil
	})
	q.Enqueue(context.Background(), j)

	err := wait(t, j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
