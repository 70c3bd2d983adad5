package entities

import "time"

// AnalyticsBucket is the per-bot, per-day usage aggregate. Collection passes
// fold runtime counters into the bucket for the current day.
type AnalyticsBucket struct {
	ID               int       `json:"id"`
	BotID            int       `json:"bot_id"`
	Date             time.Time `json:"date"` // midnight UTC of the bucket day
	MessagesSent     int       `json:"messages_sent"`
	MessagesReceived int       `json:"messages_received"`
	NewUsers         int       `json:"new_users"`
	ActiveUsers      int       `json:"active_users"`
	ErrorsCount      int       `json:"errors_count"`
	UptimePercent    float64   `json:"uptime_percent"` // reachable probes / total probes
}
