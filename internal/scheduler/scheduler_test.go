package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCoversEveryKind(t *testing.T) {
	queues := map[string]bool{QueuePayments: true, QueueMonitoring: true, QueueCleanup: true}
	for kind, name := range kindNames {
		reg, ok := catalog[kind]
		require.True(t, ok, "kind %s missing from catalog", name)
		assert.True(t, queues[reg.queue], "kind %s routed to unknown queue %q", name, reg.queue)
	}
	assert.Len(t, catalog, len(kindNames))
}

func TestCatalogCronSpecsParse(t *testing.T) {
	for kind, reg := range catalog {
		if reg.schedule.Cron == "" {
			continue
		}
		_, err := cron.ParseStandard(reg.schedule.Cron)
		assert.NoError(t, err, "kind %s", kind)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(zerolog.Nop(), Options{})
	h := func(ctx context.Context, _ int) error { return nil }

	require.NoError(t, s.Register(KindStartBot, h))
	assert.Error(t, s.Register(KindStartBot, h))
	assert.Error(t, s.Register(Kind(999), h))
}

func TestSubmitUnregisteredKindFails(t *testing.T) {
	s := New(zerolog.Nop(), Options{})
	_, err := s.Submit(context.Background(), KindStartBot, 1)
	assert.Error(t, err)
}

func TestSubmitRunsRegisteredHandler(t *testing.T) {
	s := New(zerolog.Nop(), Options{})
	defer s.Stop()

	var mu sync.Mutex
	var got []int
	require.NoError(t, s.Register(KindStartBot, func(ctx context.Context, target int) error {
		mu.Lock()
		got = append(got, target)
		mu.Unlock()
		return nil
	}))

	job, err := s.Submit(context.Background(), KindStartBot, 42)
	require.NoError(t, err)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	require.NoError(t, job.Err())
	assert.Equal(t, []int{42}, got)
}

func TestRestartSubmitsAtElevatedPriority(t *testing.T) {
	s := New(zerolog.Nop(), Options{})
	require.NoError(t, s.Register(KindRestartBot, func(ctx context.Context, _ int) error { return nil }))

	job, err := s.Submit(context.Background(), KindRestartBot, 5)
	require.NoError(t, err)
	assert.Equal(t, PriorityEmergency, job.Priority)

	override, err := s.SubmitPriority(context.Background(), KindRestartBot, 5, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, override.Priority)
	s.Stop()
}

func TestPeriodicJobFiresWhenDue(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s := New(zerolog.Nop(), Options{Tick: 5 * time.Millisecond, Now: clock})
	fired := make(chan struct{}, 10)
	require.NoError(t, s.Register(KindCheckDailyPayments, func(ctx context.Context, _ int) error {
		fired <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	// Not due yet.
	select {
	case <-fired:
		t.Fatal("fired before the interval elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	mu.Lock()
	now = now.Add(2 * time.Hour) // past the hourly cadence
	mu.Unlock()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("periodic job never fired")
	}
}

func TestQueueDepthsReportsAllQueues(t *testing.T) {
	s := New(zerolog.Nop(), Options{})
	depths := s.QueueDepths()
	assert.Len(t, depths, 3)
	for _, name := range []string{QueuePayments, QueueMonitoring, QueueCleanup} {
		_, ok := depths[name]
		assert.True(t, ok, "queue %s missing", name)
	}
	s.Stop()
}
