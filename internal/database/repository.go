package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

// PriceStore is the append-only store of price observations.
type PriceStore interface {
	InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error
	LatestPrices(ctx context.Context, pairs []string) (model.LatestPrices, error)
}

// BalanceStore reads balances and credits funding outside of trading.
type BalanceStore interface {
	Balances(ctx context.Context, userID uuid.UUID) ([]model.Balance, error)
	Credit(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error
}

// TradeStore reads and trims the trade history.
type TradeStore interface {
	RecentTrades(ctx context.Context, userID uuid.UUID, limit int) ([]model.TradeRecord, error)
	PruneTrades(ctx context.Context, keep int) (int64, error)
}

// ConfigStore owns the singleton bot configuration row.
type ConfigStore interface {
	LoadBotConfig(ctx context.Context) (model.BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg model.BotConfig) error
}

// Ledger runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back on an error or a panic.
type Ledger interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of balance and history mutations available inside a
// ledger transaction.
type LedgerTx interface {
	// LockBalance reads a balance and holds an exclusive lock on its row
	// until the transaction ends. ok is false when no row exists.
	LockBalance(ctx context.Context, userID uuid.UUID, currency string) (amount decimal.Decimal, ok bool, err error)
	// SetBalance stores amount, deleting the row when amount <= 0.
	SetBalance(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error
	InsertTrades(ctx context.Context, trades ...model.TradeRecord) error
}

// Repository defines the standard interface for database operations.
type Repository interface {
	PriceStore
	BalanceStore
	TradeStore
	ConfigStore
	Ledger
	Migrate(ctx context.Context) error
}
