package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hermes/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_snapshots (
		id BIGSERIAL PRIMARY KEY,
		pair VARCHAR(20) NOT NULL,
		currency VARCHAR(10) NOT NULL,
		source VARCHAR(20) NOT NULL,
		bid NUMERIC(30, 12) NOT NULL CHECK (bid >= 0),
		ask NUMERIC(30, 12) NOT NULL CHECK (ask >= 0),
		observed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS price_snapshots_latest_idx
		ON price_snapshots (pair, source, observed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS balances (
		user_id UUID NOT NULL,
		currency VARCHAR(10) NOT NULL,
		amount NUMERIC(30, 12) NOT NULL CHECK (amount >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, currency)
	)`,
	`CREATE TABLE IF NOT EXISTS trade_history (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NOT NULL,
		pair VARCHAR(20) NOT NULL,
		operation VARCHAR(4) NOT NULL,
		amount NUMERIC(30, 12) NOT NULL,
		price_at_execution NUMERIC(30, 12) NOT NULL,
		status VARCHAR(10) NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		profit NUMERIC(30, 12) NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bot_config (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		risk_tolerance DOUBLE PRECISION NOT NULL,
		min_confidence_score DOUBLE PRECISION NOT NULL,
		trade_size_percentage DOUBLE PRECISION NOT NULL,
		selected_currencies TEXT NOT NULL,
		check_interval_seconds INTEGER NOT NULL CHECK (check_interval_seconds > 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// DefaultBotConfig seeds the bot_config row when none exists yet.
var DefaultBotConfig = model.BotConfig{
	RiskTolerance:        0.5,
	MinConfidenceScore:   0.6,
	TradeSizePercentage:  0.1,
	SelectedCurrencies:   []string{"BTC", "ETH"},
	CheckIntervalSeconds: 60,
}

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
	// Defaults seeds bot_config on first read. Zero value means DefaultBotConfig.
	Defaults *model.BotConfig
}

// NewPostgresRepository connects to connString and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string, maxConns int32) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// Migrate creates the tables the bot needs. It is safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadBotConfig returns the singleton configuration, creating it from the
// defaults when it does not exist yet.
func (r *PostgresRepository) LoadBotConfig(ctx context.Context) (model.BotConfig, error) {
	const selectQuery = `SELECT is_active, risk_tolerance, min_confidence_score, trade_size_percentage,
			selected_currencies, check_interval_seconds
		FROM bot_config WHERE id = 1`

	cfg, err := r.scanBotConfig(ctx, selectQuery)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.BotConfig{}, fmt.Errorf("load bot config: %w", err)
	}

	def := DefaultBotConfig
	if r.Defaults != nil {
		def = *r.Defaults
	}
	const seedQuery = `INSERT INTO bot_config
			(id, is_active, risk_tolerance, min_confidence_score, trade_size_percentage, selected_currencies, check_interval_seconds)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.Pool.Exec(ctx, seedQuery, def.IsActive, def.RiskTolerance, def.MinConfidenceScore,
		def.TradeSizePercentage, def.SelectedCurrenciesString(), def.CheckIntervalSeconds); err != nil {
		return model.BotConfig{}, fmt.Errorf("seed bot config: %w", err)
	}

	// Another process may have won the insert; read back whatever is stored.
	cfg, err = r.scanBotConfig(ctx, selectQuery)
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("load bot config: %w", err)
	}
	return cfg, nil
}

func (r *PostgresRepository) scanBotConfig(ctx context.Context, query string) (model.BotConfig, error) {
	var (
		cfg        model.BotConfig
		currencies string
	)
	err := r.Pool.QueryRow(ctx, query).Scan(&cfg.IsActive, &cfg.RiskTolerance, &cfg.MinConfidenceScore,
		&cfg.TradeSizePercentage, &currencies, &cfg.CheckIntervalSeconds)
	if err != nil {
		return model.BotConfig{}, err
	}
	cfg.SelectedCurrencies = model.ParseCurrencies(currencies)
	return cfg, nil
}

// SaveBotConfig overwrites the singleton configuration.
func (r *PostgresRepository) SaveBotConfig(ctx context.Context, cfg model.BotConfig) error {
	const query = `INSERT INTO bot_config
			(id, is_active, risk_tolerance, min_confidence_score, trade_size_percentage, selected_currencies, check_interval_seconds, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			risk_tolerance = EXCLUDED.risk_tolerance,
			min_confidence_score = EXCLUDED.min_confidence_score,
			trade_size_percentage = EXCLUDED.trade_size_percentage,
			selected_currencies = EXCLUDED.selected_currencies,
			check_interval_seconds = EXCLUDED.check_interval_seconds,
			updated_at = NOW()`
	_, err := r.Pool.Exec(ctx, query, cfg.IsActive, cfg.RiskTolerance, cfg.MinConfidenceScore,
		cfg.TradeSizePercentage, cfg.SelectedCurrenciesString(), cfg.CheckIntervalSeconds)
	if err != nil {
		return fmt.Errorf("save bot config: %w", err)
	}
	return nil
}
