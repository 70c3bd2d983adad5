package repository

import (
	"context"
	"errors"
	"time"

	"botfleet/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, owner_id, COALESCE(bot_id, 0), amount, payment_type, status,
	COALESCE(method, ''), COALESCE(transaction_id, ''), COALESCE(description, ''),
	created_at, completed_at`

func scanPayment(row pgx.Row) (*entities.Payment, error) {
	var p entities.Payment
	var completed *time.Time
	err := row.Scan(&p.ID, &p.OwnerID, &p.BotID, &p.Amount, &p.Type, &p.Status,
		&p.Method, &p.TransactionID, &p.Description,
		&p.CreatedAt, &completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CompletedAt = fromNull(completed)
	return &p, nil
}

// nullInt maps 0 to SQL NULL for optional foreign keys.
func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *entities.Payment) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO payments (owner_id, bot_id, amount, payment_type, status, method,
			transaction_id, description, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, p.OwnerID, nullInt(p.BotID), p.Amount, p.Type, p.Status, p.Method,
		p.TransactionID, p.Description, p.CreatedAt, nullTime(p.CompletedAt)).Scan(&p.ID)
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int) (*entities.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1", id))
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *entities.Payment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET bot_id = $2, status = $3, method = $4, transaction_id = $5,
			description = $6, completed_at = $7
		WHERE id = $1
	`, p.ID, nullInt(p.BotID), p.Status, p.Method, p.TransactionID,
		p.Description, nullTime(p.CompletedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

// ListPayments returns the newest payments first. limit <= 0 means no limit.
func (r *PaymentRepository) ListPayments(ctx context.Context, limit int) ([]*entities.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*entities.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) DeletePaymentsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM payments WHERE status != 'pending' AND created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
