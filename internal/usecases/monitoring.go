package usecases

import (
	"context"
	"sync"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemHealth is the latest resource and fleet snapshot.
type SystemHealth struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
	DiskPercent float64   `json:"disk_percent"`
	RunningBots int       `json:"running_bots"`
	SampledAt   time.Time `json:"sampled_at"`
	Healthy     bool      `json:"healthy"`
}

// Monitor runs the observation passes: analytics collection, per-bot
// performance review, and system resource sampling.
type Monitor struct {
	store      interfaces.Store
	registry   *Registry
	supervisor *Supervisor
	logger     zerolog.Logger

	mu   sync.Mutex
	last SystemHealth

	// Bots whose day bucket crosses this error count get flagged.
	errorThreshold int
	now            func() time.Time
}

// NewMonitor creates the monitor.
func NewMonitor(store interfaces.Store, registry *Registry, supervisor *Supervisor, logger zerolog.Logger) *Monitor {
	return &Monitor{
		store:          store,
		registry:       registry,
		supervisor:     supervisor,
		logger:         logger.With().Str("component", "monitor").Logger(),
		errorThreshold: 50,
		now:            time.Now,
	}
}

// CollectAnalytics samples every running bot's counters and folds them into
// the day's bucket. Uptime is the fraction of reachable probes in the window
// since the previous collection.
func (m *Monitor) CollectAnalytics(ctx context.Context) error {
	bots, err := m.registry.ByStatus(ctx, entities.StatusRunning)
	if err != nil {
		return err
	}
	now := m.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, bot := range bots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		proc := m.supervisor.Process(bot.ID)
		if proc == nil {
			continue
		}
		stats := proc.Stats()
		total, ok := m.supervisor.ProbeWindow(bot.ID)
		uptime := 0.0
		if total > 0 {
			uptime = float64(ok) / float64(total) * 100
		}
		bucket := &entities.AnalyticsBucket{
			BotID:            bot.ID,
			Date:             day,
			MessagesSent:     stats.MessagesSent,
			MessagesReceived: stats.MessagesReceived,
			NewUsers:         stats.NewUsers,
			ActiveUsers:      stats.ActiveUsers,
			ErrorsCount:      stats.Errors,
			UptimePercent:    uptime,
		}
		if err := m.store.UpsertBucket(ctx, bucket); err != nil {
			m.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("bucket upsert failed")
			continue
		}
		if stats.MessagesSent+stats.MessagesReceived+stats.NewUsers > 0 {
			if _, err := m.registry.Update(ctx, bot.ID, func(b *entities.Bot) {
				b.TotalMessages += stats.MessagesSent + stats.MessagesReceived
				b.TotalUsers += stats.NewUsers
			}); err != nil {
				m.logger.Warn().Err(err).Int("bot_id", bot.ID).Msg("counter update failed")
			}
		}
	}
	return nil
}

// MonitorPerformance reviews today's buckets and flags bots with heavy error
// counts or poor uptime.
func (m *Monitor) MonitorPerformance(ctx context.Context) error {
	bots, err := m.registry.ByStatus(ctx, entities.StatusRunning)
	if err != nil {
		return err
	}
	for _, bot := range bots {
		buckets, err := m.store.BucketsForBot(ctx, bot.ID, 1)
		if err != nil || len(buckets) == 0 {
			continue
		}
		b := buckets[0]
		if b.ErrorsCount >= m.errorThreshold {
			m.logger.Warn().Int("bot_id", bot.ID).Int("errors", b.ErrorsCount).Msg("bot error count above threshold")
		}
		if b.UptimePercent > 0 && b.UptimePercent < 90 {
			m.logger.Warn().Int("bot_id", bot.ID).Float64("uptime", b.UptimePercent).Msg("bot uptime degraded")
		}
	}
	return nil
}

// CheckSystemHealth samples host resources and fleet counts. The snapshot is
// kept for the admin surface.
func (m *Monitor) CheckSystemHealth(ctx context.Context) error {
	health := SystemHealth{SampledAt: m.now(), Healthy: true}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		health.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		health.MemPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		health.DiskPercent = du.UsedPercent
	}
	health.RunningBots = m.supervisor.RunningCount()
	if health.CPUPercent > 95 || health.MemPercent > 95 || health.DiskPercent > 95 {
		health.Healthy = false
		m.logger.Warn().
			Float64("cpu", health.CPUPercent).
			Float64("mem", health.MemPercent).
			Float64("disk", health.DiskPercent).
			Msg("system resources strained")
	}

	m.mu.Lock()
	m.last = health
	m.mu.Unlock()
	return nil
}

// LastHealth returns the most recent system health snapshot.
func (m *Monitor) LastHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
