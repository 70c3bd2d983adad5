package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botfleet/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BotRepository struct {
	db *pgxpool.Pool
}

func NewBotRepository(db *pgxpool.Pool) *BotRepository {
	return &BotRepository{db: db}
}

const botColumns = `id, owner_id, template_id, name, username, token, status, config,
	COALESCE(process_ref, ''), last_payment_date, next_payment_date,
	total_messages, total_users, created_at, suspended_at,
	deletion_due_at, delete_marked_at, COALESCE(last_reminder_day, '')`

// nullTime maps the zero time to SQL NULL so date checks stay meaningful.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func scanBot(row pgx.Row) (*entities.Bot, error) {
	var b entities.Bot
	var lastPay, nextPay, susp, due, marked *time.Time
	err := row.Scan(&b.ID, &b.OwnerID, &b.TemplateID, &b.Name, &b.Username, &b.Token, &b.Status, &b.Config,
		&b.ProcessRef, &lastPay, &nextPay,
		&b.TotalMessages, &b.TotalUsers, &b.CreatedAt, &susp,
		&due, &marked, &b.LastReminderDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.LastPaymentDate = fromNull(lastPay)
	b.NextPaymentDate = fromNull(nextPay)
	b.SuspendedAt = fromNull(susp)
	b.DeletionDueAt = fromNull(due)
	b.DeleteMarkedAt = fromNull(marked)
	return &b, nil
}

func (r *BotRepository) CreateBot(ctx context.Context, bot *entities.Bot) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO bots (owner_id, template_id, name, username, token, status, config,
			process_ref, last_payment_date, next_payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, bot.OwnerID, bot.TemplateID, bot.Name, bot.Username, bot.Token, bot.Status, bot.Config,
		bot.ProcessRef, nullTime(bot.LastPaymentDate), nullTime(bot.NextPaymentDate), bot.CreatedAt).Scan(&bot.ID)
}

func (r *BotRepository) GetBot(ctx context.Context, id int) (*entities.Bot, error) {
	return scanBot(r.db.QueryRow(ctx,
		"SELECT "+botColumns+" FROM bots WHERE id = $1", id))
}

func (r *BotRepository) UpdateBot(ctx context.Context, bot *entities.Bot) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bots SET name = $2, username = $3, status = $4, config = $5, process_ref = $6,
			last_payment_date = $7, next_payment_date = $8, total_messages = $9, total_users = $10,
			suspended_at = $11, deletion_due_at = $12, delete_marked_at = $13, last_reminder_day = $14
		WHERE id = $1
	`, bot.ID, bot.Name, bot.Username, bot.Status, bot.Config, bot.ProcessRef,
		nullTime(bot.LastPaymentDate), nullTime(bot.NextPaymentDate), bot.TotalMessages, bot.TotalUsers,
		nullTime(bot.SuspendedAt), nullTime(bot.DeletionDueAt), nullTime(bot.DeleteMarkedAt), bot.LastReminderDay)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

func (r *BotRepository) BotsByStatus(ctx context.Context, statuses ...entities.BotStatus) ([]*entities.Bot, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx,
		"SELECT "+botColumns+" FROM bots WHERE status = ANY($1) ORDER BY id", names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBots(rows)
}

func (r *BotRepository) BotsByOwner(ctx context.Context, ownerID int) ([]*entities.Bot, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+botColumns+" FROM bots WHERE owner_id = $1 ORDER BY id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBots(rows)
}

func (r *BotRepository) CountActiveByOwner(ctx context.Context, ownerID int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM bots WHERE owner_id = $1 AND status != 'deleted'", ownerID).Scan(&count)
	return count, err
}

func (r *BotRepository) AppendTransition(ctx context.Context, tr *entities.StatusTransition) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bot_transitions (bot_id, from_status, to_status, reason, at)
		VALUES ($1, $2, $3, $4, $5)
	`, tr.BotID, tr.From, tr.To, tr.Reason, tr.At)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

func collectBots(rows pgx.Rows) ([]*entities.Bot, error) {
	bots := []*entities.Bot{}
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}
