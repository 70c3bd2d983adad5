package interfaces

import (
	"context"
	"time"

	"botfleet/internal/entities"
)

// BotStore persists bots and their audited status transitions. Implementations
// must provide atomic read-modify-write per row.
type BotStore interface {
	CreateBot(ctx context.Context, bot *entities.Bot) error
	GetBot(ctx context.Context, id int) (*entities.Bot, error)
	UpdateBot(ctx context.Context, bot *entities.Bot) error
	BotsByStatus(ctx context.Context, statuses ...entities.BotStatus) ([]*entities.Bot, error)
	BotsByOwner(ctx context.Context, ownerID int) ([]*entities.Bot, error)
	CountActiveByOwner(ctx context.Context, ownerID int) (int, error)
	AppendTransition(ctx context.Context, tr *entities.StatusTransition) error
}

// OwnerStore persists tenants and their balances.
type OwnerStore interface {
	CreateOwner(ctx context.Context, owner *entities.Owner) error
	GetOwner(ctx context.Context, id int) (*entities.Owner, error)
	UpdateOwner(ctx context.Context, owner *entities.Owner) error
	ListOwners(ctx context.Context) ([]*entities.Owner, error)
}

// PaymentStore persists payment rows.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *entities.Payment) error
	GetPayment(ctx context.Context, id int) (*entities.Payment, error)
	UpdatePayment(ctx context.Context, p *entities.Payment) error
	ListPayments(ctx context.Context, limit int) ([]*entities.Payment, error)
	DeletePaymentsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// TemplateStore holds the bot template catalog.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id int) (*entities.BotTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]*entities.BotTemplate, error)
}

// AnalyticsStore persists per-bot daily usage buckets.
type AnalyticsStore interface {
	UpsertBucket(ctx context.Context, b *entities.AnalyticsBucket) error
	BucketsForBot(ctx context.Context, botID int, days int) ([]*entities.AnalyticsBucket, error)
	DeleteBucketsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store bundles the persistence contracts the orchestrator needs.
type Store interface {
	BotStore
	OwnerStore
	PaymentStore
	TemplateStore
	AnalyticsStore
}

// RuntimeStats is a snapshot of a running bot's counters.
type RuntimeStats struct {
	MessagesSent     int
	MessagesReceived int
	ActiveUsers      int
	NewUsers         int
	Errors           int
}

// Process is a handle to one running bot instance.
type Process interface {
	// Ref is a stable identifier for the instance, recorded on the bot row.
	Ref() string
	// Probe checks liveness and responsiveness.
	Probe(ctx context.Context) error
	// Stats reports usage counters accumulated since the last call, resetting
	// them, so collection passes fold deltas into day buckets.
	Stats() RuntimeStats
	// Stop requests graceful termination and waits for it, bounded by ctx.
	Stop(ctx context.Context) error
}

// Runtime spawns bot instances from a token and an opaque config blob. It owns
// all conversational logic of the bot itself.
type Runtime interface {
	Start(ctx context.Context, token string, config []byte) (Process, error)
}

// Notifier delivers a message to a platform user, fire-and-forget. The core
// requires no delivery guarantee.
type Notifier interface {
	Notify(ownerTelegramID int64, message string)
}
