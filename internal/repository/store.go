package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore bundles the individual repositories into the single Store
// contract the usecase layer depends on.
type PostgresStore struct {
	*BotRepository
	*OwnerRepository
	*PaymentRepository
	*TemplateRepository
	*AnalyticsRepository
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		BotRepository:       NewBotRepository(db),
		OwnerRepository:     NewOwnerRepository(db),
		PaymentRepository:   NewPaymentRepository(db),
		TemplateRepository:  NewTemplateRepository(db),
		AnalyticsRepository: NewAnalyticsRepository(db),
	}
}
