package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

// InTx runs fn in a transaction. pgx.BeginFunc defers the rollback, so a
// panic inside fn also leaves nothing behind.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(&pgLedgerTx{tx: tx})
	})
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (l *pgLedgerTx) LockBalance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, bool, error) {
	const query = `SELECT amount FROM balances
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE`

	var amount decimal.Decimal
	err := l.tx.QueryRow(ctx, query, userID, currency).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("lock balance for user %s currency %s: %w", userID, currency, err)
	}
	return amount, true, nil
}

func (l *pgLedgerTx) SetBalance(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		const deleteQuery = `DELETE FROM balances WHERE user_id = $1 AND currency = $2`
		if _, err := l.tx.Exec(ctx, deleteQuery, userID, currency); err != nil {
			return fmt.Errorf("delete balance for user %s currency %s: %w", userID, currency, err)
		}
		return nil
	}

	const upsertQuery = `INSERT INTO balances (user_id, currency, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, currency) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`
	if _, err := l.tx.Exec(ctx, upsertQuery, userID, currency, amount); err != nil {
		return fmt.Errorf("set balance for user %s currency %s: %w", userID, currency, err)
	}
	return nil
}

func (l *pgLedgerTx) InsertTrades(ctx context.Context, trades ...model.TradeRecord) error {
	const query = `INSERT INTO trade_history
			(user_id, pair, operation, amount, price_at_execution, status, confidence_score, profit, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, t.UserID, t.Pair, string(t.Operation), t.Amount, t.PriceAtExecution,
			string(t.Status), t.ConfidenceScore, t.Profit, t.Reason, t.Timestamp)
	}
	if err := l.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %d trade records: %w", len(trades), err)
	}
	return nil
}

// Balances lists every holding of a user ordered by currency.
func (r *PostgresRepository) Balances(ctx context.Context, userID uuid.UUID) ([]model.Balance, error) {
	const query = `SELECT user_id, currency, amount, updated_at
		FROM balances WHERE user_id = $1 ORDER BY currency`

	rows, err := r.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query balances for user %s: %w", userID, err)
	}
	balances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Balance, error) {
		var b model.Balance
		err := row.Scan(&b.UserID, &b.Currency, &b.Amount, &b.UpdatedAt)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan balances for user %s: %w", userID, err)
	}
	return balances, nil
}

// Credit adds amount to a balance, creating the row on first credit.
func (r *PostgresRepository) Credit(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	const query = `INSERT INTO balances (user_id, currency, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, currency) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`
	if _, err := r.Pool.Exec(ctx, query, userID, currency, amount); err != nil {
		return fmt.Errorf("credit %s %s to user %s: %w", amount, currency, userID, err)
	}
	return nil
}
