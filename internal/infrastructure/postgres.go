package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	// Owners (tenants)
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS owners (
			id SERIAL PRIMARY KEY,
			telegram_id BIGINT UNIQUE NOT NULL,
			username VARCHAR(255),
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			language_code VARCHAR(10) DEFAULT 'uz',
			is_admin BOOLEAN DEFAULT FALSE,
			is_banned BOOLEAN DEFAULT FALSE,
			balance BIGINT DEFAULT 0,
			total_spent BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("create owners table: %w", err)
	}

	// Bot templates
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bot_templates (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			category VARCHAR(100) NOT NULL,
			config_schema JSONB,
			creation_fee BIGINT NOT NULL,
			daily_fee BIGINT NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("create bot_templates table: %w", err)
	}

	// Bots
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bots (
			id SERIAL PRIMARY KEY,
			owner_id INT NOT NULL REFERENCES owners(id),
			template_id INT NOT NULL REFERENCES bot_templates(id),
			name VARCHAR(255) NOT NULL,
			username VARCHAR(255),
			token VARCHAR(500) NOT NULL,
			status VARCHAR(50) DEFAULT 'created',
			config JSONB,
			process_ref VARCHAR(255),
			last_payment_date TIMESTAMPTZ,
			next_payment_date TIMESTAMPTZ,
			total_messages INT DEFAULT 0,
			total_users INT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			suspended_at TIMESTAMPTZ,
			deletion_due_at TIMESTAMPTZ,
			delete_marked_at TIMESTAMPTZ,
			last_reminder_day VARCHAR(10)
		);
		CREATE INDEX IF NOT EXISTS idx_bots_status ON bots(status);
		CREATE INDEX IF NOT EXISTS idx_bots_owner ON bots(owner_id);
	`)
	if err != nil {
		return fmt.Errorf("create bots table: %w", err)
	}

	// Status transition audit
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bot_transitions (
			id SERIAL PRIMARY KEY,
			bot_id INT NOT NULL,
			from_status VARCHAR(50) NOT NULL,
			to_status VARCHAR(50) NOT NULL,
			reason VARCHAR(100) NOT NULL,
			at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_bot ON bot_transitions(bot_id);
	`)
	if err != nil {
		return fmt.Errorf("create bot_transitions table: %w", err)
	}

	// Payments
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id SERIAL PRIMARY KEY,
			owner_id INT NOT NULL REFERENCES owners(id),
			bot_id INT,
			amount BIGINT NOT NULL,
			payment_type VARCHAR(50) NOT NULL,
			status VARCHAR(50) DEFAULT 'pending',
			method VARCHAR(100),
			transaction_id VARCHAR(255),
			description TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payments_owner ON payments(owner_id);
	`)
	if err != nil {
		return fmt.Errorf("create payments table: %w", err)
	}

	// Per-bot daily analytics
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bot_analytics (
			id SERIAL PRIMARY KEY,
			bot_id INT NOT NULL,
			date DATE NOT NULL,
			messages_sent INT DEFAULT 0,
			messages_received INT DEFAULT 0,
			new_users INT DEFAULT 0,
			active_users INT DEFAULT 0,
			errors_count INT DEFAULT 0,
			uptime_percent DOUBLE PRECISION DEFAULT 0,
			UNIQUE (bot_id, date)
		);
	`)
	if err != nil {
		return fmt.Errorf("create bot_analytics table: %w", err)
	}

	// Seed the default template catalog when empty
	var count int
	if err := p.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM bot_templates").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err = p.Pool.Exec(ctx, `
			INSERT INTO bot_templates (name, description, category, creation_fee, daily_fee) VALUES
			('Shop Assistant', 'Product catalog and order taking', 'business', 50000, 1000),
			('Support Desk', 'FAQ and ticket intake', 'professional', 50000, 1000),
			('Community Manager', 'Group moderation and welcome flows', 'social', 30000, 800),
			('Reminder Bot', 'Personal reminders and schedules', 'utility', 20000, 500);
		`)
		if err != nil {
			return fmt.Errorf("seed bot_templates: %w", err)
		}
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
