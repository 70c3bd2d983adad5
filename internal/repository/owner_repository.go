package repository

import (
	"context"
	"errors"

	"botfleet/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OwnerRepository struct {
	db *pgxpool.Pool
}

func NewOwnerRepository(db *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{db: db}
}

const ownerColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''),
	COALESCE(last_name, ''), COALESCE(language_code, 'uz'), is_admin, is_banned,
	balance, total_spent, created_at`

func scanOwner(row pgx.Row) (*entities.Owner, error) {
	var o entities.Owner
	err := row.Scan(&o.ID, &o.TelegramID, &o.Username, &o.FirstName,
		&o.LastName, &o.LanguageCode, &o.IsAdmin, &o.IsBanned,
		&o.Balance, &o.TotalSpent, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OwnerRepository) CreateOwner(ctx context.Context, owner *entities.Owner) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO owners (telegram_id, username, first_name, last_name, language_code,
			is_admin, is_banned, balance, total_spent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, owner.TelegramID, owner.Username, owner.FirstName, owner.LastName, owner.LanguageCode,
		owner.IsAdmin, owner.IsBanned, owner.Balance, owner.TotalSpent).Scan(&owner.ID, &owner.CreatedAt)
}

func (r *OwnerRepository) GetOwner(ctx context.Context, id int) (*entities.Owner, error) {
	return scanOwner(r.db.QueryRow(ctx,
		"SELECT "+ownerColumns+" FROM owners WHERE id = $1", id))
}

func (r *OwnerRepository) UpdateOwner(ctx context.Context, owner *entities.Owner) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE owners SET username = $2, first_name = $3, last_name = $4, language_code = $5,
			is_admin = $6, is_banned = $7, balance = $8, total_spent = $9
		WHERE id = $1
	`, owner.ID, owner.Username, owner.FirstName, owner.LastName, owner.LanguageCode,
		owner.IsAdmin, owner.IsBanned, owner.Balance, owner.TotalSpent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

func (r *OwnerRepository) ListOwners(ctx context.Context) ([]*entities.Owner, error) {
	rows, err := r.db.Query(ctx, "SELECT "+ownerColumns+" FROM owners ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := []*entities.Owner{}
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}
