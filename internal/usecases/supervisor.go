package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"

	"github.com/rs/zerolog"
)

// SupervisorConfig tunes process supervision.
type SupervisorConfig struct {
	MaxBotsPerOwner int
	StopTimeout     time.Duration
	ProbeTimeout    time.Duration
	// Consecutive probe failures before one automatic restart attempt.
	ProbeFailureThreshold int
	// Consecutive failed restarts before escalation to suspended.
	RestartFailureThreshold int
}

type healthState struct {
	probeFails   int
	restartFails int
	probesTotal  int
	probesOK     int
}

// Supervisor owns the runtime execution of every bot: it spawns, probes,
// restarts and terminates instances, and keeps the registry in step with what
// is actually running.
type Supervisor struct {
	registry *Registry
	store    interfaces.Store
	runtime  interfaces.Runtime
	notifier interfaces.Notifier
	logger   zerolog.Logger
	cfg      SupervisorConfig

	mu     sync.Mutex
	procs  map[int]interfaces.Process
	health map[int]*healthState
}

// NewSupervisor creates a supervisor. Thresholds and timeouts fall back to
// production defaults when zero.
func NewSupervisor(registry *Registry, store interfaces.Store, runtime interfaces.Runtime, notifier interfaces.Notifier, logger zerolog.Logger, cfg SupervisorConfig) *Supervisor {
	if cfg.MaxBotsPerOwner <= 0 {
		cfg.MaxBotsPerOwner = 10
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ProbeFailureThreshold <= 0 {
		cfg.ProbeFailureThreshold = 3
	}
	if cfg.RestartFailureThreshold <= 0 {
		cfg.RestartFailureThreshold = 3
	}
	return &Supervisor{
		registry: registry,
		store:    store,
		runtime:  runtime,
		notifier: notifier,
		logger:   logger.With().Str("component", "supervisor").Logger(),
		cfg:      cfg,
		procs:    make(map[int]interfaces.Process),
		health:   make(map[int]*healthState),
	}
}

// CheckQuota fails with ErrQuotaExceeded when the owner already holds the
// maximum number of non-deleted bots.
func (s *Supervisor) CheckQuota(ctx context.Context, ownerID int) error {
	n, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if n >= s.cfg.MaxBotsPerOwner {
		return fmt.Errorf("owner %d has %d bots: %w", ownerID, n, entities.ErrQuotaExceeded)
	}
	return nil
}

// Create spawns a runtime instance for a new bot and persists the row. The
// caller settles the creation fee first; on spawn failure no row is written
// and ErrSpawnFailure is returned.
func (s *Supervisor) Create(ctx context.Context, bot *entities.Bot) (*entities.Bot, error) {
	if err := s.CheckQuota(ctx, bot.OwnerID); err != nil {
		return nil, err
	}
	proc, err := s.runtime.Start(ctx, bot.Token, bot.Config)
	if err != nil {
		return nil, fmt.Errorf("bot %q: %v: %w", bot.Name, err, entities.ErrSpawnFailure)
	}
	bot.ProcessRef = proc.Ref()
	if err := s.registry.Register(ctx, bot); err != nil {
		s.stopProcess(proc, bot.ID)
		return nil, err
	}
	s.trackProcess(bot.ID, proc)
	// The creation fee covers the first day, so the first daily charge is due
	// tomorrow, not on the next hourly pass.
	now := s.registry.now()
	updated, err := s.registry.Transition(ctx, bot.ID, entities.StatusRunning, ReasonSpawned, func(b *entities.Bot) {
		b.LastPaymentDate = now
		b.NextPaymentDate = now.Add(24 * time.Hour)
	})
	if err != nil {
		return nil, err
	}
	*bot = *updated
	s.logger.Info().Int("bot_id", bot.ID).Str("ref", proc.Ref()).Msg("bot spawned")
	return bot, nil
}

// Start spawns an existing stopped bot and marks it running.
func (s *Supervisor) Start(ctx context.Context, botID int) error {
	bot, err := s.registry.Get(ctx, botID)
	if err != nil {
		return err
	}
	return s.spawnExisting(ctx, bot, ReasonManualStart)
}

// Reinstate brings a suspended bot back after its blocking debt cleared.
func (s *Supervisor) Reinstate(ctx context.Context, botID int) error {
	bot, err := s.registry.Get(ctx, botID)
	if err != nil {
		return err
	}
	return s.spawnExisting(ctx, bot, ReasonPaymentOK)
}

func (s *Supervisor) spawnExisting(ctx context.Context, bot *entities.Bot, reason string) error {
	proc, err := s.runtime.Start(ctx, bot.Token, bot.Config)
	if err != nil {
		return fmt.Errorf("bot %d: %v: %w", bot.ID, err, entities.ErrSpawnFailure)
	}
	if _, err := s.registry.Transition(ctx, bot.ID, entities.StatusRunning, reason, func(b *entities.Bot) {
		b.ProcessRef = proc.Ref()
	}); err != nil {
		s.stopProcess(proc, bot.ID)
		return err
	}
	s.trackProcess(bot.ID, proc)
	return nil
}

// Stop gracefully terminates a running bot, forcing termination after the
// configured timeout, and marks it stopped.
func (s *Supervisor) Stop(ctx context.Context, botID int) error {
	s.StopRuntime(botID)
	_, err := s.registry.Transition(ctx, botID, entities.StatusStopped, ReasonManualStop, nil)
	return err
}

// Restart stops a bot's runtime (when live) and spawns a fresh instance with
// the same identity. Used by automated remediation and manual commands.
func (s *Supervisor) Restart(ctx context.Context, botID int) error {
	bot, err := s.registry.Get(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Status != entities.StatusRunning {
		return s.spawnExisting(ctx, bot, ReasonManualStart)
	}
	// A running bot is replaced in place: the row keeps its status so a
	// failed respawn stays visible to the health pass.
	s.StopRuntime(botID)
	proc, err := s.runtime.Start(ctx, bot.Token, bot.Config)
	if err != nil {
		return fmt.Errorf("bot %d: %v: %w", bot.ID, err, entities.ErrSpawnFailure)
	}
	if _, err := s.registry.Update(ctx, botID, func(b *entities.Bot) {
		b.ProcessRef = proc.Ref()
	}); err != nil {
		s.stopProcess(proc, botID)
		return err
	}
	s.trackProcess(botID, proc)
	return nil
}

// Delete stops a bot if running and soft-deletes it. The token leaves active
// use but stays on the row for audit until the hard purge.
func (s *Supervisor) Delete(ctx context.Context, botID int) error {
	s.StopRuntime(botID)
	_, err := s.registry.Transition(ctx, botID, entities.StatusPendingDeletion, ReasonManualDelete, nil)
	return err
}

// Suspend terminates the runtime and marks the bot suspended with the given
// reason. Called by billing on overdue payment and by health escalation.
func (s *Supervisor) Suspend(ctx context.Context, botID int, reason string) error {
	s.StopRuntime(botID)
	_, err := s.registry.Transition(ctx, botID, entities.StatusSuspended, reason, nil)
	return err
}

// ResumeAll respawns every bot whose row says running but has no live
// process. Called once at startup so a platform restart brings the fleet
// back up.
func (s *Supervisor) ResumeAll(ctx context.Context) {
	bots, err := s.registry.ByStatus(ctx, entities.StatusRunning)
	if err != nil {
		s.logger.Error().Err(err).Msg("fleet resume listing failed")
		return
	}
	for _, bot := range bots {
		if s.Process(bot.ID) != nil {
			continue
		}
		proc, err := s.runtime.Start(ctx, bot.Token, bot.Config)
		if err != nil {
			s.logger.Warn().Err(err).Int("bot_id", bot.ID).Msg("bot resume failed")
			continue
		}
		if _, err := s.registry.Update(ctx, bot.ID, func(b *entities.Bot) {
			b.ProcessRef = proc.Ref()
		}); err != nil {
			s.stopProcess(proc, bot.ID)
			continue
		}
		s.trackProcess(bot.ID, proc)
		s.logger.Info().Int("bot_id", bot.ID).Str("ref", proc.Ref()).Msg("bot resumed")
	}
}

// StopRuntime terminates the live process for a bot, if any, without touching
// registry state. Graceful first, forced when the stop timeout expires.
func (s *Supervisor) StopRuntime(botID int) {
	s.mu.Lock()
	proc, ok := s.procs[botID]
	delete(s.procs, botID)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.stopProcess(proc, botID)
}

func (s *Supervisor) stopProcess(proc interfaces.Process, botID int) {
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	if err := proc.Stop(sctx); err != nil {
		s.logger.Warn().Err(err).Int("bot_id", botID).Msg("graceful stop failed, terminating")
	}
}

func (s *Supervisor) trackProcess(botID int, proc interfaces.Process) {
	s.mu.Lock()
	s.procs[botID] = proc
	// Keep an existing health entry so the probe window survives restarts.
	if s.health[botID] == nil {
		s.health[botID] = &healthState{}
	}
	s.mu.Unlock()
}

// Process returns the live handle for a bot, nil when none.
func (s *Supervisor) Process(botID int) interfaces.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[botID]
}

// RunningCount reports how many instances are live.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// HealthPass probes every running bot once. After the configured number of
// consecutive probe failures one automatic restart is attempted; when
// restarts themselves keep failing the bot is suspended with reason
// repeated_crash and surfaced to the admin layer rather than retried forever.
func (s *Supervisor) HealthPass(ctx context.Context) error {
	bots, err := s.registry.ByStatus(ctx, entities.StatusRunning)
	if err != nil {
		return err
	}
	for _, bot := range bots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.probeBot(ctx, bot)
	}
	return nil
}

func (s *Supervisor) probeBot(ctx context.Context, bot *entities.Bot) {
	s.mu.Lock()
	proc := s.procs[bot.ID]
	hs := s.health[bot.ID]
	if hs == nil {
		hs = &healthState{}
		s.health[bot.ID] = hs
	}
	s.mu.Unlock()

	var probeErr error
	if proc == nil {
		probeErr = fmt.Errorf("bot %d marked running but no live process", bot.ID)
	} else {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		probeErr = proc.Probe(pctx)
		cancel()
	}

	s.mu.Lock()
	hs.probesTotal++
	if probeErr == nil {
		hs.probesOK++
		hs.probeFails = 0
		hs.restartFails = 0
		s.mu.Unlock()
		return
	}
	hs.probeFails++
	fails := hs.probeFails
	s.mu.Unlock()

	s.logger.Warn().Err(probeErr).Int("bot_id", bot.ID).Int("consecutive", fails).Msg("health probe failed")
	if fails < s.cfg.ProbeFailureThreshold {
		return
	}

	// One automatic restart attempt per escalation.
	if err := s.Restart(ctx, bot.ID); err != nil {
		s.mu.Lock()
		hs.restartFails++
		restartFails := hs.restartFails
		hs.probeFails = 0
		s.mu.Unlock()
		s.logger.Error().Err(err).Int("bot_id", bot.ID).Int("restart_failures", restartFails).Msg("automatic restart failed")
		if restartFails >= s.cfg.RestartFailureThreshold {
			if serr := s.Suspend(ctx, bot.ID, ReasonRepeatedCrash); serr != nil {
				s.logger.Error().Err(serr).Int("bot_id", bot.ID).Msg("crash suspension failed")
				return
			}
			s.notifyCrash(ctx, bot)
		}
		return
	}
	s.mu.Lock()
	hs.probeFails = 0
	hs.restartFails = 0
	s.mu.Unlock()
	s.logger.Info().Int("bot_id", bot.ID).Msg("bot restarted after failed probes")
}

func (s *Supervisor) notifyCrash(ctx context.Context, bot *entities.Bot) {
	owner, err := s.store.GetOwner(ctx, bot.OwnerID)
	if err != nil {
		return
	}
	s.notifier.Notify(owner.TelegramID,
		fmt.Sprintf("Your bot %q keeps crashing and has been suspended. Contact support to reinstate it.", bot.Name))
}

// ProbeWindow returns and resets the probe counters accumulated for a bot
// since the last call. Analytics collection derives the uptime fraction from
// it.
func (s *Supervisor) ProbeWindow(botID int) (total, ok int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.health[botID]
	if hs == nil {
		return 0, 0
	}
	total, ok = hs.probesTotal, hs.probesOK
	hs.probesTotal, hs.probesOK = 0, 0
	return total, ok
}
