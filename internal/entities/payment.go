package entities

import "time"

// PaymentType classifies what a payment pays for.
type PaymentType string

const (
	PaymentCreationFee  PaymentType = "creation_fee"
	PaymentDailyFee     PaymentType = "daily_fee"
	PaymentBalanceTopup PaymentType = "balance_topup"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment records a single debit or top-up against an owner's balance.
// A completed payment debits (or credits, for top-ups) exactly once.
type Payment struct {
	ID            int           `json:"id"`
	OwnerID       int           `json:"owner_id"`
	BotID         int           `json:"bot_id,omitempty"` // 0 for top-ups
	Amount        int64         `json:"amount"`
	Type          PaymentType   `json:"type"`
	Status        PaymentStatus `json:"status"`
	Method        string        `json:"method,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   time.Time     `json:"completed_at,omitempty"`
}
