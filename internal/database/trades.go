package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hermes/internal/model"
)

// RecentTrades returns up to limit trade legs of a user, newest first.
func (r *PostgresRepository) RecentTrades(ctx context.Context, userID uuid.UUID, limit int) ([]model.TradeRecord, error) {
	const query = `SELECT id, user_id, pair, operation, amount, price_at_execution, status,
			confidence_score, profit, reason, timestamp
		FROM trade_history
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`

	rows, err := r.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades for user %s: %w", userID, err)
	}
	trades, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TradeRecord, error) {
		var (
			t         model.TradeRecord
			operation string
			status    string
		)
		err := row.Scan(&t.ID, &t.UserID, &t.Pair, &operation, &t.Amount, &t.PriceAtExecution, &status,
			&t.ConfidenceScore, &t.Profit, &t.Reason, &t.Timestamp)
		t.Operation = model.Operation(operation)
		t.Status = model.TradeStatus(status)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan trades for user %s: %w", userID, err)
	}
	return trades, nil
}

// PruneTrades keeps the keep most recent trade legs and deletes the rest.
func (r *PostgresRepository) PruneTrades(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	const query = `DELETE FROM trade_history
		WHERE id NOT IN (
			SELECT id FROM trade_history ORDER BY timestamp DESC, id DESC LIMIT $1
		)`
	tag, err := r.Pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("prune trades keeping %d: %w", keep, err)
	}
	return tag.RowsAffected(), nil
}
