package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Options tune the scheduler. Zero values fall back to production defaults.
type Options struct {
	WorkersPerQueue int
	SoftLimit       time.Duration
	HardLimit       time.Duration
	Tick            time.Duration
	Journal         *Journal
	Now             func() time.Time
}

// Scheduler drives the periodic job catalog and accepts ad-hoc submissions
// across the named queues. Handlers are attached per kind before Start; the
// kind set itself is closed.
type Scheduler struct {
	logger zerolog.Logger
	opts   Options

	queues map[string]*Queue

	mu      sync.Mutex
	regs    map[Kind]registration
	entries []*periodicEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type periodicEntry struct {
	kind Kind
	spec cron.Schedule // nil for fixed intervals
	next time.Time
}

// New creates a scheduler with the three production queues.
func New(logger zerolog.Logger, opts Options) *Scheduler {
	if opts.WorkersPerQueue <= 0 {
		opts.WorkersPerQueue = 4
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = 50 * time.Minute
	}
	if opts.HardLimit <= 0 {
		opts.HardLimit = time.Hour
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
		opts:   opts,
		queues: make(map[string]*Queue),
		regs:   make(map[Kind]registration),
	}
	for _, name := range []string{QueuePayments, QueueMonitoring, QueueCleanup} {
		s.queues[name] = NewQueue(name, opts.WorkersPerQueue, logger, opts.Journal)
	}
	return s
}

// Register attaches the handler for a kind. Registering an unknown kind or
// re-registering one is a programming error.
func (s *Scheduler) Register(kind Kind, h Handler) error {
	reg, ok := catalog[kind]
	if !ok {
		return fmt.Errorf("unknown job kind %d", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.regs[kind]; dup {
		return fmt.Errorf("job kind %s already registered", kind)
	}
	reg.handler = h
	s.regs[kind] = reg
	if reg.schedule.periodic() {
		entry := &periodicEntry{kind: kind}
		if reg.schedule.Cron != "" {
			spec, err := cron.ParseStandard(reg.schedule.Cron)
			if err != nil {
				return fmt.Errorf("kind %s: bad cron spec %q: %w", kind, reg.schedule.Cron, err)
			}
			entry.spec = spec
		}
		s.entries = append(s.entries, entry)
	}
	return nil
}

// Start begins the periodic loop. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	now := s.opts.Now()
	s.mu.Lock()
	for _, e := range s.entries {
		e.next = s.nextRun(e, now)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fireDue(ctx)
			}
		}
	}()
	s.logger.Info().Int("periodic_jobs", len(s.entries)).Msg("scheduler started")
}

// Stop halts the periodic loop and drains all queues.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	for _, q := range s.queues {
		q.Drain()
	}
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.opts.Now()
	s.mu.Lock()
	var due []Kind
	for _, e := range s.entries {
		if !now.Before(e.next) {
			due = append(due, e.kind)
			e.next = s.nextRun(e, now)
		}
	}
	s.mu.Unlock()
	for _, kind := range due {
		if _, err := s.submit(ctx, kind, 0, -1); err != nil {
			s.logger.Error().Err(err).Str("kind", kind.String()).Msg("periodic submit failed")
		}
	}
}

func (s *Scheduler) nextRun(e *periodicEntry, from time.Time) time.Time {
	if e.spec != nil {
		return e.spec.Next(from)
	}
	return from.Add(s.regs[e.kind].schedule.Every)
}

// Submit enqueues an ad-hoc job for a kind at its registered priority and
// returns a handle the caller can wait on.
func (s *Scheduler) Submit(ctx context.Context, kind Kind, target int) (*Job, error) {
	return s.submit(ctx, kind, target, -1)
}

// SubmitPriority enqueues with an explicit priority override.
func (s *Scheduler) SubmitPriority(ctx context.Context, kind Kind, target, priority int) (*Job, error) {
	return s.submit(ctx, kind, target, priority)
}

func (s *Scheduler) submit(ctx context.Context, kind Kind, target, priority int) (*Job, error) {
	s.mu.Lock()
	reg, ok := s.regs[kind]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job kind %s has no handler", kind)
	}
	if priority < 0 {
		priority = reg.priority
	}
	job := &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		Queue:      reg.queue,
		Target:     target,
		Priority:   priority,
		SoftLimit:  s.opts.SoftLimit,
		HardLimit:  s.opts.HardLimit,
		MaxRetries: reg.maxRetries,
		target:     reg.target,
		run:        reg.handler,
		done:       make(chan struct{}),
	}
	s.queues[reg.queue].Enqueue(ctx, job)
	return job, nil
}

// QueueDepths reports pending counts per queue, for the admin surface.
func (s *Scheduler) QueueDepths() map[string]int {
	out := make(map[string]int, len(s.queues))
	for name, q := range s.queues {
		out[name] = q.Depth()
	}
	return out
}
