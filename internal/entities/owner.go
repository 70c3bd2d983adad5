package entities

import "time"

// Owner is a platform tenant: a paying user who owns zero or more bots.
type Owner struct {
	ID           int       `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	LanguageCode string    `json:"language_code"`
	IsAdmin      bool      `json:"is_admin"`
	IsBanned     bool      `json:"is_banned"`
	Balance      int64     `json:"balance"`     // smallest currency unit
	TotalSpent   int64     `json:"total_spent"`
	CreatedAt    time.Time `json:"created_at"`
}
