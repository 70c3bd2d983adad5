package entities

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the orchestrator core. Callers match them with
// errors.Is; wrapped messages carry the detail.
var (
	ErrQuotaExceeded       = errors.New("bot quota exceeded")
	ErrSpawnFailure        = errors.New("runtime spawn failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTimeout             = errors.New("operation timed out")
)

// InvalidTransition wraps ErrInvalidTransition with the rejected edge.
func InvalidTransition(botID int, from, to BotStatus) error {
	return fmt.Errorf("bot %d: %s -> %s: %w", botID, from, to, ErrInvalidTransition)
}
