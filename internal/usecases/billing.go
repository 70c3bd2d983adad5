package usecases

import (
	"context"
	"fmt"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BillingConfig tunes payment evaluation.
type BillingConfig struct {
	DefaultCreationFee int64
	DefaultDailyFee    int64
	// Days before the deletion deadline at which reminders go out.
	ReminderDayOffsets []int
}

// Billing evaluates payment state on schedule and drives the
// suspension/reinstatement side of the lifecycle. Owner balances are mutated
// only here, serialized per owner id, so concurrent passes cannot double-debit.
type Billing struct {
	store      interfaces.Store
	registry   *Registry
	supervisor *Supervisor
	notifier   interfaces.Notifier
	logger     zerolog.Logger
	cfg        BillingConfig

	ownerLocks *keyedMutex
	now        func() time.Time
}

// NewBilling creates the billing gate.
func NewBilling(store interfaces.Store, registry *Registry, supervisor *Supervisor, notifier interfaces.Notifier, logger zerolog.Logger, cfg BillingConfig) *Billing {
	if cfg.DefaultCreationFee <= 0 {
		cfg.DefaultCreationFee = 50000
	}
	if cfg.DefaultDailyFee <= 0 {
		cfg.DefaultDailyFee = 1000
	}
	if len(cfg.ReminderDayOffsets) == 0 {
		cfg.ReminderDayOffsets = []int{3, 1}
	}
	return &Billing{
		store:      store,
		registry:   registry,
		supervisor: supervisor,
		notifier:   notifier,
		logger:     logger.With().Str("component", "billing").Logger(),
		cfg:        cfg,
		ownerLocks: newKeyedMutex(),
		now:        time.Now,
	}
}

// dailyFee resolves the fee for a bot from its template, falling back to the
// platform default.
func (b *Billing) dailyFee(ctx context.Context, bot *entities.Bot) int64 {
	tpl, err := b.store.GetTemplate(ctx, bot.TemplateID)
	if err != nil || tpl.DailyFee <= 0 {
		return b.cfg.DefaultDailyFee
	}
	return tpl.DailyFee
}

// creationFee resolves the creation fee for a template.
func (b *Billing) creationFee(ctx context.Context, templateID int) int64 {
	tpl, err := b.store.GetTemplate(ctx, templateID)
	if err != nil || tpl.CreationFee <= 0 {
		return b.cfg.DefaultCreationFee
	}
	return tpl.CreationFee
}

// debit takes amount from the owner's balance under the owner lock. Fails
// with ErrInsufficientBalance without touching the balance.
func (b *Billing) debit(ctx context.Context, ownerID int, amount int64) error {
	lock := b.ownerLocks.Lock(ownerID)
	defer lock.Unlock()
	owner, err := b.store.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.Balance < amount {
		return fmt.Errorf("owner %d balance %d, need %d: %w", ownerID, owner.Balance, amount, entities.ErrInsufficientBalance)
	}
	owner.Balance -= amount
	owner.TotalSpent += amount
	return b.store.UpdateOwner(ctx, owner)
}

// credit adds amount back to the owner's balance.
func (b *Billing) credit(ctx context.Context, ownerID int, amount int64, spent bool) error {
	lock := b.ownerLocks.Lock(ownerID)
	defer lock.Unlock()
	owner, err := b.store.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	owner.Balance += amount
	if spent {
		owner.TotalSpent -= amount
	}
	return b.store.UpdateOwner(ctx, owner)
}

// ChargeCreationFee settles the creation fee for a new bot before any row is
// written. It returns the completed payment so a failed spawn can be refunded.
func (b *Billing) ChargeCreationFee(ctx context.Context, ownerID, templateID int) (*entities.Payment, error) {
	fee := b.creationFee(ctx, templateID)
	if err := b.debit(ctx, ownerID, fee); err != nil {
		return nil, err
	}
	now := b.now()
	p := &entities.Payment{
		OwnerID:       ownerID,
		Amount:        fee,
		Type:          entities.PaymentCreationFee,
		Status:        entities.PaymentCompleted,
		Method:        "balance",
		TransactionID: uuid.New().String(),
		Description:   "bot creation fee",
		CreatedAt:     now,
		CompletedAt:   now,
	}
	if err := b.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RefundCreationFee reverses a creation-fee debit after a failed spawn and
// marks the payment failed.
func (b *Billing) RefundCreationFee(ctx context.Context, p *entities.Payment) {
	if err := b.credit(ctx, p.OwnerID, p.Amount, true); err != nil {
		b.logger.Error().Err(err).Int("payment_id", p.ID).Msg("creation fee refund failed")
		return
	}
	p.Status = entities.PaymentFailed
	p.Description = "bot creation fee (spawn failed, refunded)"
	if err := b.store.UpdatePayment(ctx, p); err != nil {
		b.logger.Error().Err(err).Int("payment_id", p.ID).Msg("refund payment update failed")
	}
}

// CheckDailyPayments walks every running or suspended bot whose payment date
// has passed and attempts the daily debit. The pass is idempotent per billing
// period: a successful debit advances next_payment_date, so a rerun the same
// day finds nothing due. Suspended bots past their grace window move to
// pending_deletion here.
func (b *Billing) CheckDailyPayments(ctx context.Context) error {
	bots, err := b.registry.ByStatus(ctx, entities.StatusRunning, entities.StatusSuspended)
	if err != nil {
		return err
	}
	now := b.now()
	for _, bot := range bots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if bot.Status == entities.StatusSuspended && !bot.DeletionDueAt.IsZero() && now.After(bot.DeletionDueAt) {
			if _, err := b.registry.Transition(ctx, bot.ID, entities.StatusPendingDeletion, ReasonGraceExpired, nil); err != nil {
				b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("grace expiry transition failed")
			}
			continue
		}
		if bot.NextPaymentDate.After(now) {
			if bot.Status == entities.StatusSuspended {
				b.sendReminder(ctx, bot, now)
			}
			continue
		}
		b.billBot(ctx, bot, now)
	}
	return nil
}

func (b *Billing) billBot(ctx context.Context, bot *entities.Bot, now time.Time) {
	fee := b.dailyFee(ctx, bot)
	owner, err := b.store.GetOwner(ctx, bot.OwnerID)
	if err != nil {
		b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("owner lookup failed")
		return
	}

	if err := b.debit(ctx, bot.OwnerID, fee); err != nil {
		if bot.Status == entities.StatusRunning {
			if serr := b.supervisor.Suspend(ctx, bot.ID, ReasonPaymentOverdue); serr != nil {
				b.logger.Error().Err(serr).Int("bot_id", bot.ID).Msg("overdue suspension failed")
				return
			}
			b.notifier.Notify(owner.TelegramID,
				fmt.Sprintf("Your bot %q was suspended: balance %d is below the daily fee %d. Top up to reinstate it.", bot.Name, owner.Balance, fee))
		} else {
			b.sendReminder(ctx, bot, now)
		}
		return
	}

	p := &entities.Payment{
		OwnerID:       bot.OwnerID,
		BotID:         bot.ID,
		Amount:        fee,
		Type:          entities.PaymentDailyFee,
		Status:        entities.PaymentCompleted,
		Method:        "balance",
		TransactionID: uuid.New().String(),
		Description:   "daily hosting fee",
		CreatedAt:     now,
		CompletedAt:   now,
	}
	if err := b.store.CreatePayment(ctx, p); err != nil {
		b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("daily fee payment write failed")
	}

	advance := func(bt *entities.Bot) {
		bt.LastPaymentDate = now
		bt.NextPaymentDate = now.Add(24 * time.Hour)
	}
	if bot.Status == entities.StatusSuspended {
		// Paying within the grace window reinstates the bot.
		if err := b.supervisor.Reinstate(ctx, bot.ID); err != nil {
			b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("reinstate after payment failed")
		}
	}
	if _, err := b.registry.Update(ctx, bot.ID, advance); err != nil {
		b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("payment date advance failed")
		return
	}
	b.notifier.Notify(owner.TelegramID,
		fmt.Sprintf("Daily fee of %d charged for bot %q. Next charge: %s.", fee, bot.Name, now.Add(24*time.Hour).Format("2006-01-02")))
}

// sendReminder notifies the owner of a suspended bot when the deletion
// deadline is one of the configured day-offsets away. At most one reminder per
// day per bot.
func (b *Billing) sendReminder(ctx context.Context, bot *entities.Bot, now time.Time) {
	if bot.DeletionDueAt.IsZero() {
		return
	}
	today := now.Format("2006-01-02")
	if bot.LastReminderDay == today {
		return
	}
	daysLeft := int(bot.DeletionDueAt.Sub(now).Hours() / 24)
	match := false
	for _, off := range b.cfg.ReminderDayOffsets {
		if daysLeft == off {
			match = true
			break
		}
	}
	if !match {
		return
	}
	owner, err := b.store.GetOwner(ctx, bot.OwnerID)
	if err != nil {
		return
	}
	b.notifier.Notify(owner.TelegramID,
		fmt.Sprintf("Bot %q is suspended and will be deleted in %d day(s). Top up your balance to keep it.", bot.Name, daysLeft))
	if _, err := b.registry.Update(ctx, bot.ID, func(bt *entities.Bot) {
		bt.LastReminderDay = today
	}); err != nil {
		b.logger.Warn().Err(err).Int("bot_id", bot.ID).Msg("reminder bookkeeping failed")
	}
}

// CreateTopup records a pending balance top-up to be settled out of band.
func (b *Billing) CreateTopup(ctx context.Context, ownerID int, amount int64, method string) (*entities.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("top-up amount must be positive")
	}
	p := &entities.Payment{
		OwnerID:       ownerID,
		Amount:        amount,
		Type:          entities.PaymentBalanceTopup,
		Status:        entities.PaymentPending,
		Method:        method,
		TransactionID: uuid.New().String(),
		Description:   "balance top-up",
		CreatedAt:     b.now(),
	}
	if err := b.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApprovePayment marks a pending payment completed, credits the owner, and
// reinstates a suspended bot when the payment resolves its blocking debt.
func (b *Billing) ApprovePayment(ctx context.Context, paymentID int) error {
	p, err := b.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status != entities.PaymentPending {
		return fmt.Errorf("payment %d is %s, not pending", paymentID, p.Status)
	}
	now := b.now()
	p.Status = entities.PaymentCompleted
	p.CompletedAt = now
	if err := b.store.UpdatePayment(ctx, p); err != nil {
		return err
	}

	switch p.Type {
	case entities.PaymentBalanceTopup:
		if err := b.credit(ctx, p.OwnerID, p.Amount, false); err != nil {
			return err
		}
	case entities.PaymentDailyFee:
		// Direct fee settlement clears the bot's outstanding debt without
		// passing through the balance.
	}

	owner, err := b.store.GetOwner(ctx, p.OwnerID)
	if err != nil {
		return err
	}
	b.notifier.Notify(owner.TelegramID, fmt.Sprintf("Payment of %d received. Thank you!", p.Amount))

	// Reinstate any suspended bot of this owner whose fee the new funds cover.
	bots, err := b.registry.ByOwner(ctx, p.OwnerID)
	if err != nil {
		return err
	}
	for _, bot := range bots {
		if bot.Status != entities.StatusSuspended {
			continue
		}
		fee := b.dailyFee(ctx, bot)
		directSettle := p.Type == entities.PaymentDailyFee && p.BotID == bot.ID
		if !directSettle {
			if err := b.debit(ctx, p.OwnerID, fee); err != nil {
				continue
			}
		}
		if err := b.supervisor.Reinstate(ctx, bot.ID); err != nil {
			b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("reinstate after approval failed")
			continue
		}
		if _, err := b.registry.Update(ctx, bot.ID, func(bt *entities.Bot) {
			bt.LastPaymentDate = now
			bt.NextPaymentDate = now.Add(24 * time.Hour)
		}); err != nil {
			b.logger.Error().Err(err).Int("bot_id", bot.ID).Msg("payment date advance failed")
		}
	}
	return nil
}

// DailyReport summarizes the previous day for platform administrators.
type DailyReport struct {
	Date       string `json:"date"`
	Revenue    int64  `json:"revenue"`
	Payments   int    `json:"payments"`
	NewBots    int    `json:"new_bots"`
	Running    int    `json:"running"`
	Suspended  int    `json:"suspended"`
	TotalBots  int    `json:"total_bots"`
	NewUsers   int    `json:"new_users"`
	TotalUsers int    `json:"total_users"`
}

// GenerateDailyReport builds yesterday's revenue/fleet summary and sends it to
// every admin.
func (b *Billing) GenerateDailyReport(ctx context.Context, adminIDs []int64) (*DailyReport, error) {
	now := b.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(-24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	report := &DailyReport{Date: dayStart.Format("2006-01-02")}

	payments, err := b.store.ListPayments(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.Status != entities.PaymentCompleted || p.CompletedAt.Before(dayStart) || !p.CompletedAt.Before(dayEnd) {
			continue
		}
		report.Revenue += p.Amount
		report.Payments++
	}

	all, err := b.registry.ByStatus(ctx,
		entities.StatusCreated, entities.StatusRunning, entities.StatusStopped,
		entities.StatusSuspended, entities.StatusPendingDeletion)
	if err != nil {
		return nil, err
	}
	for _, bot := range all {
		report.TotalBots++
		switch bot.Status {
		case entities.StatusRunning:
			report.Running++
		case entities.StatusSuspended:
			report.Suspended++
		}
		if !bot.CreatedAt.Before(dayStart) && bot.CreatedAt.Before(dayEnd) {
			report.NewBots++
		}
	}

	owners, err := b.store.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	report.TotalUsers = len(owners)
	for _, o := range owners {
		if !o.CreatedAt.Before(dayStart) && o.CreatedAt.Before(dayEnd) {
			report.NewUsers++
		}
	}

	msg := fmt.Sprintf("Daily report %s\nRevenue: %d (%d payments)\nNew bots: %d\nFleet: %d total, %d running, %d suspended\nUsers: %d total, %d new",
		report.Date, report.Revenue, report.Payments, report.NewBots,
		report.TotalBots, report.Running, report.Suspended, report.TotalUsers, report.NewUsers)
	for _, id := range adminIDs {
		b.notifier.Notify(id, msg)
	}
	b.logger.Info().Str("date", report.Date).Int64("revenue", report.Revenue).Msg("daily report generated")
	return report, nil
}
