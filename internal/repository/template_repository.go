package repository

import (
	"context"
	"errors"

	"botfleet/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, COALESCE(description, ''), category, config_schema,
	creation_fee, daily_fee, is_active, created_at`

func scanTemplate(row pgx.Row) (*entities.BotTemplate, error) {
	var t entities.BotTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.ConfigSchema,
		&t.CreationFee, &t.DailyFee, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id int) (*entities.BotTemplate, error) {
	return scanTemplate(r.db.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM bot_templates WHERE id = $1", id))
}

func (r *TemplateRepository) ListTemplates(ctx context.Context, activeOnly bool) ([]*entities.BotTemplate, error) {
	query := "SELECT " + templateColumns + " FROM bot_templates"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*entities.BotTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
