package usecases

import (
	"context"
	"encoding/json"
	"os"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"
	"botfleet/internal/scheduler"

	"github.com/rs/zerolog"
)

// FleetService is the command surface consumed by the admin layer and the
// scheduler alike. Manual commands are asynchronous: the caller gets a job
// handle immediately and the effect happens when the queue services the job.
// Creation is the exception: it is synchronous so callers never observe a
// half-created bot.
type FleetService struct {
	sched       *scheduler.Scheduler
	registry    *Registry
	supervisor  *Supervisor
	billing     *Billing
	maintenance *Maintenance
	monitor     *Monitor
	store       interfaces.Store
	logger      zerolog.Logger
	adminIDs    []int64
}

// NewFleetService wires the components behind the command surface.
func NewFleetService(sched *scheduler.Scheduler, registry *Registry, supervisor *Supervisor, billing *Billing, maintenance *Maintenance, monitor *Monitor, store interfaces.Store, logger zerolog.Logger, adminIDs []int64) *FleetService {
	return &FleetService{
		sched:       sched,
		registry:    registry,
		supervisor:  supervisor,
		billing:     billing,
		maintenance: maintenance,
		monitor:     monitor,
		store:       store,
		logger:      logger.With().Str("component", "fleet").Logger(),
		adminIDs:    adminIDs,
	}
}

// RegisterJobs attaches every kind in the catalog to its handler. Must be
// called once before the scheduler starts.
func (f *FleetService) RegisterJobs() error {
	bind := []struct {
		kind scheduler.Kind
		h    scheduler.Handler
	}{
		{scheduler.KindCheckDailyPayments, func(ctx context.Context, _ int) error {
			return f.billing.CheckDailyPayments(ctx)
		}},
		{scheduler.KindCheckBotHealth, func(ctx context.Context, _ int) error {
			return f.supervisor.HealthPass(ctx)
		}},
		{scheduler.KindMonitorPerformance, func(ctx context.Context, _ int) error {
			return f.monitor.MonitorPerformance(ctx)
		}},
		{scheduler.KindCollectAnalytics, func(ctx context.Context, _ int) error {
			return f.monitor.CollectAnalytics(ctx)
		}},
		{scheduler.KindCleanupFiles, func(ctx context.Context, _ int) error {
			return f.maintenance.RunFileCleanup(ctx)
		}},
		{scheduler.KindDailyCleanup, func(ctx context.Context, _ int) error {
			return f.maintenance.DailyCleanup(ctx)
		}},
		{scheduler.KindGenerateDailyReport, func(ctx context.Context, _ int) error {
			_, err := f.billing.GenerateDailyReport(ctx, f.adminIDs)
			return err
		}},
		{scheduler.KindCheckSystemHealth, func(ctx context.Context, _ int) error {
			return f.monitor.CheckSystemHealth(ctx)
		}},
		{scheduler.KindWeeklyCleanup, func(ctx context.Context, _ int) error {
			return f.maintenance.WeeklyCleanup(ctx)
		}},
		{scheduler.KindStartBot, func(ctx context.Context, botID int) error {
			return f.supervisor.Start(ctx, botID)
		}},
		{scheduler.KindStopBot, func(ctx context.Context, botID int) error {
			return f.supervisor.Stop(ctx, botID)
		}},
		{scheduler.KindRestartBot, func(ctx context.Context, botID int) error {
			return f.supervisor.Restart(ctx, botID)
		}},
		{scheduler.KindDeleteBot, func(ctx context.Context, botID int) error {
			return f.supervisor.Delete(ctx, botID)
		}},
		{scheduler.KindSettlePayment, func(ctx context.Context, paymentID int) error {
			return f.billing.ApprovePayment(ctx, paymentID)
		}},
		{scheduler.KindEmergencyCleanup, func(ctx context.Context, _ int) error {
			return f.maintenance.EmergencyCleanup(ctx)
		}},
	}
	for _, b := range bind {
		if err := f.sched.Register(b.kind, b.h); err != nil {
			return err
		}
	}
	return nil
}

// CreateBot settles the creation fee, spawns the runtime and persists the bot
// atomically from the caller's perspective: on any failure no row survives
// and the fee is refunded.
func (f *FleetService) CreateBot(ctx context.Context, ownerID, templateID int, name, token string, config json.RawMessage) (*entities.Bot, error) {
	if err := f.supervisor.CheckQuota(ctx, ownerID); err != nil {
		return nil, err
	}
	tpl, err := f.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	payment, err := f.billing.ChargeCreationFee(ctx, ownerID, templateID)
	if err != nil {
		return nil, err
	}
	bot := &entities.Bot{
		OwnerID:    ownerID,
		TemplateID: tpl.ID,
		Name:       name,
		Token:      token,
		Config:     config,
	}
	created, err := f.supervisor.Create(ctx, bot)
	if err != nil {
		f.billing.RefundCreationFee(ctx, payment)
		return nil, err
	}
	payment.BotID = created.ID
	if uerr := f.store.UpdatePayment(ctx, payment); uerr != nil {
		f.logger.Warn().Err(uerr).Int("payment_id", payment.ID).Msg("payment bot link failed")
	}
	if derr := os.MkdirAll(f.maintenance.BotStorageDir(created.ID), 0o755); derr != nil {
		f.logger.Warn().Err(derr).Int("bot_id", created.ID).Msg("storage dir create failed")
	}
	return created, nil
}

// Start submits an asynchronous start command and returns its handle.
func (f *FleetService) Start(ctx context.Context, botID int) (*scheduler.Job, error) {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return nil, err
	}
	return f.sched.Submit(ctx, scheduler.KindStartBot, botID)
}

// Stop submits an asynchronous stop command. Returns false when the bot does
// not exist.
func (f *FleetService) Stop(ctx context.Context, botID int) bool {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return false
	}
	_, err := f.sched.Submit(ctx, scheduler.KindStopBot, botID)
	return err == nil
}

// Restart submits a restart at its registered (elevated) priority.
func (f *FleetService) Restart(ctx context.Context, botID int) (*scheduler.Job, error) {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return nil, err
	}
	return f.sched.Submit(ctx, scheduler.KindRestartBot, botID)
}

// Delete submits an asynchronous soft delete. Returns false when the bot does
// not exist.
func (f *FleetService) Delete(ctx context.Context, botID int) bool {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return false
	}
	_, err := f.sched.Submit(ctx, scheduler.KindDeleteBot, botID)
	return err == nil
}

// SettlePayment submits an asynchronous payment approval.
func (f *FleetService) SettlePayment(ctx context.Context, paymentID int) (*scheduler.Job, error) {
	if _, err := f.store.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return f.sched.Submit(ctx, scheduler.KindSettlePayment, paymentID)
}

// GetAnalytics returns the last days of usage buckets for a bot.
func (f *FleetService) GetAnalytics(ctx context.Context, botID, days int) ([]*entities.AnalyticsBucket, error) {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return nil, err
	}
	return f.store.BucketsForBot(ctx, botID, days)
}

// EmergencyRestartBot submits a restart at emergency priority, jumping queued
// normal-priority work for other bots.
func (f *FleetService) EmergencyRestartBot(ctx context.Context, botID int) (*scheduler.Job, error) {
	if _, err := f.registry.Get(ctx, botID); err != nil {
		return nil, err
	}
	return f.sched.SubmitPriority(ctx, scheduler.KindRestartBot, botID, scheduler.PriorityEmergency)
}

// EmergencyCleanup submits the out-of-band cleanup pass at emergency priority.
func (f *FleetService) EmergencyCleanup(ctx context.Context) (*scheduler.Job, error) {
	return f.sched.Submit(ctx, scheduler.KindEmergencyCleanup, 0)
}
