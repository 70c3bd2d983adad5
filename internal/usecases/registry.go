package usecases

import (
	"context"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"

	"github.com/rs/zerolog"
)

// Transition reasons recorded for audit.
const (
	ReasonSpawned        = "spawned"
	ReasonManualStop     = "manual_stop"
	ReasonManualStart    = "manual_start"
	ReasonManualDelete   = "manual_delete"
	ReasonPaymentOverdue = "payment_overdue"
	ReasonPaymentOK      = "payment_received"
	ReasonGraceExpired   = "grace_expired"
	ReasonRepeatedCrash  = "repeated_crash"
	ReasonHardPurge      = "hard_purge"
)

// transitions is the complete lifecycle edge table. deleted is terminal,
// created is initial.
var transitions = map[entities.BotStatus][]entities.BotStatus{
	entities.StatusCreated:         {entities.StatusRunning},
	entities.StatusRunning:         {entities.StatusStopped, entities.StatusSuspended, entities.StatusPendingDeletion},
	entities.StatusStopped:         {entities.StatusRunning, entities.StatusPendingDeletion},
	entities.StatusSuspended:       {entities.StatusRunning, entities.StatusPendingDeletion},
	entities.StatusPendingDeletion: {entities.StatusDeleted},
	entities.StatusDeleted:         {},
}

func edgeAllowed(from, to entities.BotStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Registry is the authoritative record of every bot's identity and lifecycle
// state. Per-bot mutations are serialized; cross-bot operations are
// independent.
type Registry struct {
	store  interfaces.BotStore
	logger zerolog.Logger
	locks  *keyedMutex

	suspendGrace time.Duration
	now          func() time.Time
}

// NewRegistry creates a registry. suspendGrace is the window an unpaid
// suspended bot keeps before it becomes eligible for deletion.
func NewRegistry(store interfaces.BotStore, logger zerolog.Logger, suspendGrace time.Duration) *Registry {
	return &Registry{
		store:        store,
		logger:       logger.With().Str("component", "registry").Logger(),
		locks:        newKeyedMutex(),
		suspendGrace: suspendGrace,
		now:          time.Now,
	}
}

// Register persists a freshly created bot row. The caller has already settled
// the creation fee and begun a spawn; status must be created.
func (r *Registry) Register(ctx context.Context, bot *entities.Bot) error {
	bot.Status = entities.StatusCreated
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = r.now()
	}
	return r.store.CreateBot(ctx, bot)
}

// Get loads one bot.
func (r *Registry) Get(ctx context.Context, id int) (*entities.Bot, error) {
	return r.store.GetBot(ctx, id)
}

// ByStatus lists bots in any of the given statuses.
func (r *Registry) ByStatus(ctx context.Context, statuses ...entities.BotStatus) ([]*entities.Bot, error) {
	return r.store.BotsByStatus(ctx, statuses...)
}

// ByOwner lists an owner's bots.
func (r *Registry) ByOwner(ctx context.Context, ownerID int) ([]*entities.Bot, error) {
	return r.store.BotsByOwner(ctx, ownerID)
}

// Transition moves a bot along one lifecycle edge, rejecting anything not in
// the table and recording the taken edge with its reason. Mutate is applied
// to the row inside the per-bot critical section, after the edge check, so
// side-effect fields (process ref, payment dates) change atomically with the
// status.
func (r *Registry) Transition(ctx context.Context, botID int, to entities.BotStatus, reason string, mutate func(*entities.Bot)) (*entities.Bot, error) {
	lock := r.locks.Lock(botID)
	defer lock.Unlock()

	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	from := bot.Status
	if !edgeAllowed(from, to) {
		return nil, entities.InvalidTransition(botID, from, to)
	}

	now := r.now()
	bot.Status = to
	switch to {
	case entities.StatusSuspended:
		bot.SuspendedAt = now
		bot.DeletionDueAt = now.Add(r.suspendGrace)
		bot.ProcessRef = ""
	case entities.StatusRunning:
		bot.SuspendedAt = time.Time{}
		bot.DeletionDueAt = time.Time{}
		bot.LastReminderDay = ""
	case entities.StatusStopped:
		bot.ProcessRef = ""
	case entities.StatusPendingDeletion:
		bot.DeleteMarkedAt = now
		bot.ProcessRef = ""
	case entities.StatusDeleted:
		bot.ProcessRef = ""
	}
	if mutate != nil {
		mutate(bot)
	}
	if err := r.store.UpdateBot(ctx, bot); err != nil {
		return nil, err
	}
	if err := r.store.AppendTransition(ctx, &entities.StatusTransition{
		BotID:  botID,
		From:   from,
		To:     to,
		Reason: reason,
		At:     now,
	}); err != nil {
		r.logger.Warn().Err(err).Int("bot_id", botID).Msg("transition audit write failed")
	}
	r.logger.Info().
		Int("bot_id", botID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("bot transitioned")
	return bot, nil
}

// Update applies a mutation to a bot row under its lock without changing
// status. Used for counter and payment-date updates.
func (r *Registry) Update(ctx context.Context, botID int, mutate func(*entities.Bot)) (*entities.Bot, error) {
	lock := r.locks.Lock(botID)
	defer lock.Unlock()

	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	mutate(bot)
	if err := r.store.UpdateBot(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}
