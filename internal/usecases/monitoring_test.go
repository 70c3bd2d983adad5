package usecases

import (
	"context"
	"errors"
	"testing"

	"botfleet/internal/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

func TestCollectAnalyticsFoldsCounters(t *testing.T) {
	s := newStack(t)
	monitor := NewMonitor(s.store, s.registry, s.supervisor, zerolog.Nop())
	monitor.now = s.clock.Now

	owner := s.addOwner(t, 100000)
	bot := s.newRunningBot(t, owner.ID)
	proc := s.runtime.lastProcess()
	proc.stats = interfaces.RuntimeStats{
		MessagesSent:     10,
		MessagesReceived: 20,
		NewUsers:         3,
		ActiveUsers:      7,
		Errors:           1,
	}

	ctx := context.Background()
	// One healthy and one failed probe: 50% uptime for the window.
	require.NoError(t, s.supervisor.HealthPass(ctx))
	proc.setProbeErr(errors.New("unreachable"))
	require.NoError(t, s.supervisor.HealthPass(ctx))
	proc.setProbeErr(nil)

	require.NoError(t, monitor.CollectAnalytics(ctx))

	buckets, err := s.store.BucketsForBot(ctx, bot.ID, 1)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	b := buckets[0]
	assert.Equal(t, 10, b.MessagesSent)
	assert.Equal(t, 20, b.MessagesReceived)
	assert.Equal(t, 3, b.NewUsers)
	assert.Equal(t, 7, b.ActiveUsers)
	assert.Equal(t, 1, b.ErrorsCount)
	assert.InDelta(t, 50.0, b.UptimePercent, 0.01)

	got := s.getBot(t, bot.ID)
	assert.Equal(t, 30, got.TotalMessages)
	assert.Equal(t, 3, got.TotalUsers)
}

func TestCollectAnalyticsAccumulatesWithinDay(t *testing.T) {
	s := newStack(t)
	monitor := NewMonitor(s.store, s.registry, s.supervisor, zerolog.Nop())
	monitor.now = s.clock.Now

	owner := s.addOwner(t, 100000)
	bot := s.newRunningBot(t, owner.ID)
	proc := s.runtime.lastProcess()
	ctx := context.Background()

	proc.stats = interfaces.RuntimeStats{MessagesSent: 5}
	require.NoError(t, monitor.CollectAnalytics(ctx))
	proc.stats = interfaces.RuntimeStats{MessagesSent: 7}
	require.NoError(t, monitor.CollectAnalytics(ctx))

	buckets, err := s.store.BucketsForBot(ctx, bot.ID, 1)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 12, buckets[0].MessagesSent)
}

func TestCheckSystemHealthKeepsSnapshot(t *testing.T) {
	s := newStack(t)
	monitor := NewMonitor(s.store, s.registry, s.supervisor, zerolog.Nop())
	monitor.now = s.clock.Now

	require.True(t, monitor.LastHealth().SampledAt.IsZero())
	require.NoError(t, monitor.CheckSystemHealth(context.Background()))

	health := monitor.LastHealth()
	assert.Equal(t, s.clock.Now(), health.SampledAt)
	assert.Zero(t, health.RunningBots)
}
