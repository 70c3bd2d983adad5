package repository

import (
	"context"
	"time"

	"botfleet/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AnalyticsRepository struct {
	db *pgxpool.Pool
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// UpsertBucket folds counter deltas into the bot's bucket for the day.
// UptimePercent is overwritten: the collector computes it over the whole
// probe window, not incrementally.
func (r *AnalyticsRepository) UpsertBucket(ctx context.Context, b *entities.AnalyticsBucket) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bot_analytics (bot_id, date, messages_sent, messages_received,
			new_users, active_users, errors_count, uptime_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bot_id, date)
		DO UPDATE SET
			messages_sent = bot_analytics.messages_sent + EXCLUDED.messages_sent,
			messages_received = bot_analytics.messages_received + EXCLUDED.messages_received,
			new_users = bot_analytics.new_users + EXCLUDED.new_users,
			active_users = GREATEST(bot_analytics.active_users, EXCLUDED.active_users),
			errors_count = bot_analytics.errors_count + EXCLUDED.errors_count,
			uptime_percent = EXCLUDED.uptime_percent
	`, b.BotID, b.Date.Format("2006-01-02"), b.MessagesSent, b.MessagesReceived,
		b.NewUsers, b.ActiveUsers, b.ErrorsCount, b.UptimePercent)
	return err
}

func (r *AnalyticsRepository) BucketsForBot(ctx context.Context, botID int, days int) ([]*entities.AnalyticsBucket, error) {
	startDate := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT id, bot_id, date, messages_sent, messages_received,
			new_users, active_users, errors_count, uptime_percent
		FROM bot_analytics
		WHERE bot_id = $1 AND date >= $2
		ORDER BY date ASC
	`, botID, startDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []*entities.AnalyticsBucket{}
	for rows.Next() {
		var b entities.AnalyticsBucket
		if err := rows.Scan(&b.ID, &b.BotID, &b.Date, &b.MessagesSent, &b.MessagesReceived,
			&b.NewUsers, &b.ActiveUsers, &b.ErrorsCount, &b.UptimePercent); err != nil {
			return nil, err
		}
		buckets = append(buckets, &b)
	}
	return buckets, rows.Err()
}

func (r *AnalyticsRepository) DeleteBucketsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM bot_analytics WHERE date < $1", cutoff.Format("2006-01-02"))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
