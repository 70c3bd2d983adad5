package usecases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"
	"botfleet/internal/scheduler"

	"github.com/rs/zerolog"
)

// MaintenanceConfig tunes cleanup and retention.
type MaintenanceConfig struct {
	BotStoragePath string
	// Days a pending_deletion bot is kept before the hard purge.
	PurgeGraceDays int
	// Days deleted-bot storage and stale analytics/payment rows are retained.
	FileRetentionDays int
}

// Maintenance runs the cleanup and purge passes: scheduled file cleanup, the
// daily hard purge of soft-deleted bots, weekly retention pruning, and the
// emergency out-of-band pass.
type Maintenance struct {
	store      interfaces.Store
	registry   *Registry
	supervisor *Supervisor
	journal    *scheduler.Journal
	logger     zerolog.Logger
	cfg        MaintenanceConfig

	mu       sync.Mutex
	inflight map[int]bool // bot ids being purged right now

	now func() time.Time
}

// NewMaintenance creates the maintenance engine. journal may be nil.
func NewMaintenance(store interfaces.Store, registry *Registry, supervisor *Supervisor, journal *scheduler.Journal, logger zerolog.Logger, cfg MaintenanceConfig) *Maintenance {
	if cfg.PurgeGraceDays <= 0 {
		cfg.PurgeGraceDays = 15
	}
	if cfg.FileRetentionDays <= 0 {
		cfg.FileRetentionDays = 30
	}
	return &Maintenance{
		store:      store,
		registry:   registry,
		supervisor: supervisor,
		journal:    journal,
		logger:     logger.With().Str("component", "maintenance").Logger(),
		cfg:        cfg,
		inflight:   make(map[int]bool),
		now:        time.Now,
	}
}

// BotStorageDir is where a bot's working files live.
func (m *Maintenance) BotStorageDir(botID int) string {
	return filepath.Join(m.cfg.BotStoragePath, fmt.Sprintf("bot_%d", botID))
}

// RunFileCleanup removes storage directories for bots that are absent from
// the registry or have been deleted longer than the retention window.
func (m *Maintenance) RunFileCleanup(ctx context.Context) error {
	entries, err := os.ReadDir(m.cfg.BotStoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := m.now().AddDate(0, 0, -m.cfg.FileRetentionDays)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "bot_") {
			continue
		}
		botID, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "bot_"))
		if err != nil {
			continue
		}
		bot, err := m.registry.Get(ctx, botID)
		stale := false
		switch {
		case err != nil: // not in the registry at all
			stale = true
		case bot.Status == entities.StatusDeleted && !bot.DeleteMarkedAt.IsZero() && bot.DeleteMarkedAt.Before(cutoff):
			stale = true
		}
		if !stale {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.cfg.BotStoragePath, entry.Name())); err != nil {
			m.logger.Warn().Err(err).Int("bot_id", botID).Msg("storage removal failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("file cleanup done")
	}
	return nil
}

// DailyCleanup hard-purges every pending_deletion bot whose grace period has
// elapsed: storage is released and the bot takes its final, irreversible
// transition to deleted.
func (m *Maintenance) DailyCleanup(ctx context.Context) error {
	bots, err := m.registry.ByStatus(ctx, entities.StatusPendingDeletion)
	if err != nil {
		return err
	}
	deadline := m.now().AddDate(0, 0, -m.cfg.PurgeGraceDays)
	for _, bot := range bots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if bot.DeleteMarkedAt.IsZero() || bot.DeleteMarkedAt.After(deadline) {
			continue
		}
		m.purgeBot(ctx, bot.ID)
	}
	return nil
}

// purgeBot performs the hard delete once. Concurrent callers (scheduled and
// emergency passes) are deduplicated by bot id.
func (m *Maintenance) purgeBot(ctx context.Context, botID int) {
	m.mu.Lock()
	if m.inflight[botID] {
		m.mu.Unlock()
		return
	}
	m.inflight[botID] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, botID)
		m.mu.Unlock()
	}()

	m.supervisor.StopRuntime(botID)
	if err := os.RemoveAll(m.BotStorageDir(botID)); err != nil {
		m.logger.Warn().Err(err).Int("bot_id", botID).Msg("storage removal failed")
	}
	if _, err := m.registry.Transition(ctx, botID, entities.StatusDeleted, ReasonHardPurge, nil); err != nil {
		m.logger.Error().Err(err).Int("bot_id", botID).Msg("hard purge transition failed")
		return
	}
	m.logger.Info().Int("bot_id", botID).Msg("bot hard-deleted")
}

// WeeklyCleanup prunes analytics, payment and job-history rows past the
// retention window.
func (m *Maintenance) WeeklyCleanup(ctx context.Context) error {
	cutoff := m.now().AddDate(0, 0, -m.cfg.FileRetentionDays)
	buckets, err := m.store.DeleteBucketsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	payments, err := m.store.DeletePaymentsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	runs := 0
	if m.journal != nil {
		if runs, err = m.journal.PruneBefore(cutoff); err != nil {
			m.logger.Warn().Err(err).Msg("journal prune failed")
		}
	}
	m.logger.Info().
		Int("analytics_rows", buckets).
		Int("payment_rows", payments).
		Int("job_runs", runs).
		Msg("weekly cleanup done")
	return nil
}

// EmergencyCleanup is the immediate out-of-band pass: the daily purge plus
// file cleanup, idempotent and safe to run concurrently with the scheduled
// passes.
func (m *Maintenance) EmergencyCleanup(ctx context.Context) error {
	if err := m.DailyCleanup(ctx); err != nil {
		return err
	}
	return m.RunFileCleanup(ctx)
}
