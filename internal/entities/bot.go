package entities

import "time"

// BotStatus is the lifecycle state of a hosted bot.
type BotStatus string

const (
	StatusCreated         BotStatus = "created"
	StatusRunning         BotStatus = "running"
	StatusStopped         BotStatus = "stopped"
	StatusSuspended       BotStatus = "suspended"
	StatusPendingDeletion BotStatus = "pending_deletion"
	StatusDeleted         BotStatus = "deleted"
)

// Bot is one hosted bot instance owned by a platform user.
type Bot struct {
	ID         int       `json:"id"`
	OwnerID    int       `json:"owner_id"`
	TemplateID int       `json:"template_id"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	Token      string    `json:"-"` // immutable after creation
	Status     BotStatus `json:"status"`
	Config     []byte    `json:"config,omitempty"` // opaque JSON blob handed to the runtime

	ProcessRef string `json:"process_ref,omitempty"` // runtime instance handle, empty unless running

	LastPaymentDate time.Time `json:"last_payment_date"`
	NextPaymentDate time.Time `json:"next_payment_date"`

	TotalMessages int `json:"total_messages"`
	TotalUsers    int `json:"total_users"`

	CreatedAt       time.Time `json:"created_at"`
	SuspendedAt     time.Time `json:"suspended_at,omitempty"`
	DeletionDueAt   time.Time `json:"deletion_due_at,omitempty"` // set on suspension and on soft delete
	DeleteMarkedAt  time.Time `json:"delete_marked_at,omitempty"`
	LastReminderDay string    `json:"-"` // YYYY-MM-DD of the last pre-deletion reminder
}

// Active reports whether the bot still counts against its owner's quota.
func (b *Bot) Active() bool {
	return b.Status != StatusDeleted
}

// StatusTransition is one audited edge taken by a bot.
type StatusTransition struct {
	ID     int       `json:"id"`
	BotID  int       `json:"bot_id"`
	From   BotStatus `json:"from"`
	To     BotStatus `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
