package entities

import "time"

// BotTemplate is a parameterized bot behavior definition selected at creation
// time. Fees are per template; the runtime interprets ConfigSchema.
type BotTemplate struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"` // business, utility, social, professional
	ConfigSchema []byte    `json:"config_schema,omitempty"`
	CreationFee  int64     `json:"creation_fee"`
	DailyFee     int64     `json:"daily_fee"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
