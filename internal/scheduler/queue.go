package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"botfleet/internal/entities"

	"github.com/rs/zerolog"
)

// Queue is a named dispatch queue with bounded worker concurrency and per-key
// FIFO ordering. Selection among eligible jobs is by priority, then by
// submission order. A job is acknowledged (removed for good) only when its
// handler returns; a panicking or failing handler is redelivered until its
// retry budget runs out.
type Queue struct {
	name      string
	maxActive int
	logger    zerolog.Logger
	journal   *Journal

	mu         sync.Mutex
	pending    []*Job
	activeKeys map[string]bool
	active     int
	closed     bool
	seq        uint64

	wg sync.WaitGroup
}

// NewQueue creates a queue running at most maxActive jobs concurrently.
func NewQueue(name string, maxActive int, logger zerolog.Logger, journal *Journal) *Queue {
	return &Queue{
		name:       name,
		maxActive:  maxActive,
		logger:     logger.With().Str("queue", name).Logger(),
		journal:    journal,
		activeKeys: make(map[string]bool),
	}
}

// Enqueue adds a job and tries to dispatch. The ctx is forwarded to the job
// so shutdown cancellation propagates.
func (q *Queue) Enqueue(ctx context.Context, job *Job) {
	if job.done == nil {
		job.done = make(chan struct{})
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		job.err = fmt.Errorf("queue %s closed", q.name)
		close(job.done)
		return
	}
	q.seq++
	job.seq = q.seq
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	q.tryDispatch(ctx)
}

// Drain stops dispatching new work and waits for in-flight jobs.
func (q *Queue) Drain() {
	q.mu.Lock()
	q.closed = true
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, j := range dropped {
		j.err = fmt.Errorf("queue %s closed", q.name)
		close(j.done)
	}
	q.wg.Wait()
}

// Depth reports the number of queued (not yet running) jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) tryDispatch(ctx context.Context) {
	q.mu.Lock()
	if q.closed || q.active >= q.maxActive {
		q.mu.Unlock()
		return
	}
	idx := q.pick()
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	job := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	q.activeKeys[job.key()] = true
	q.active++
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		q.runJob(ctx, job)
		q.mu.Lock()
		delete(q.activeKeys, job.key())
		q.active--
		q.mu.Unlock()
		q.tryDispatch(ctx)
	}()
}

// pick returns the index of the best eligible pending job: highest priority
// first, submission order within a priority band. Jobs whose key is busy stay
// queued, which is what keeps per-bot ordering intact.
func (q *Queue) pick() int {
	best := -1
	for i, j := range q.pending {
		if q.activeKeys[j.key()] {
			continue
		}
		if q.earlierSameKey(i, j) {
			continue
		}
		if best < 0 || j.Priority > q.pending[best].Priority ||
			(j.Priority == q.pending[best].Priority && j.seq < q.pending[best].seq) {
			best = i
		}
	}
	return best
}

// earlierSameKey reports whether a pending job before index i shares the key
// and has priority >= the candidate's, in which case the candidate must wait.
func (q *Queue) earlierSameKey(i int, j *Job) bool {
	for _, prev := range q.pending[:i] {
		if prev.key() == j.key() && prev.Priority >= j.Priority {
			return true
		}
	}
	return false
}

func (q *Queue) runJob(ctx context.Context, job *Job) {
	for {
		job.attempt++
		start := time.Now()
		err := q.execute(ctx, job)
		q.record(job, start, err)

		if err == nil {
			job.err = nil
			close(job.done)
			return
		}
		q.logger.Error().Err(err).
			Str("job", job.ID).
			Str("kind", job.Kind.String()).
			Int("target", job.Target).
			Int("attempt", job.attempt).
			Msg("job failed")

		// A hard-limit expiry leaves the abandoned handler goroutine possibly
		// still running; retrying in place would run two attempts for the same
		// key at once, so the job terminates instead.
		if job.attempt > job.MaxRetries || ctx.Err() != nil || errors.Is(err, entities.ErrTimeout) {
			job.err = err
			close(job.done)
			return
		}
	}
}

// execute runs the handler under the job's soft and hard time limits. Soft
// expiry cancels the handler context; hard expiry abandons the handler and
// reports ErrTimeout. Panics are caught here, at the queue boundary.
func (q *Queue) execute(ctx context.Context, job *Job) error {
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("job panic: %v", r)
			}
		}()
		result <- job.run(jctx, job.Target)
	}()

	var softC, hardC <-chan time.Time
	if job.SoftLimit > 0 {
		soft := time.NewTimer(job.SoftLimit)
		defer soft.Stop()
		softC = soft.C
	}
	if job.HardLimit > 0 {
		hard := time.NewTimer(job.HardLimit)
		defer hard.Stop()
		hardC = hard.C
	}

	for {
		select {
		case err := <-result:
			return err
		case <-softC:
			q.logger.Warn().Str("job", job.ID).Str("kind", job.Kind.String()).
				Msg("soft time limit expired, cancelling")
			cancel()
			softC = nil
		case <-hardC:
			return fmt.Errorf("job %s hard time limit: %w", job.ID, entities.ErrTimeout)
		}
	}
}

func (q *Queue) record(job *Job, start time.Time, err error) {
	if q.journal == nil {
		return
	}
	status := "ok"
	errText := ""
	if err != nil {
		status = "error"
		errText = err.Error()
	}
	if jerr := q.journal.Record(RunRecord{
		JobID:      job.ID,
		Kind:       job.Kind.String(),
		Queue:      q.name,
		Target:     job.Target,
		Attempt:    job.attempt,
		Status:     status,
		Error:      errText,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}); jerr != nil {
		q.logger.Warn().Err(jerr).Msg("journal write failed")
	}
}
