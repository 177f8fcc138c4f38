package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

// InsertSnapshots appends all snapshots in a single transaction; either every
// row is written or none is.
func (r *PostgresRepository) InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	const query = `INSERT INTO price_snapshots (pair, currency, source, bid, ask, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	err := pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range snapshots {
			batch.Queue(query, s.Pair, s.Currency, string(s.Source), s.Bid, s.Ask, s.ObservedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert %d price snapshots: %w", len(snapshots), err)
	}
	return nil
}

// LatestPrices returns the newest quote of every (pair, source) for the given pairs.
func (r *PostgresRepository) LatestPrices(ctx context.Context, pairs []string) (model.LatestPrices, error) {
	const query = `SELECT DISTINCT ON (pair, source) pair, source, bid, ask
		FROM price_snapshots
		WHERE pair = ANY($1)
		ORDER BY pair, source, observed_at DESC, id DESC`

	rows, err := r.Pool.Query(ctx, query, pairs)
	if err != nil {
		return nil, fmt.Errorf("query latest prices: %w", err)
	}
	defer rows.Close()

	latest := make(model.LatestPrices)
	for rows.Next() {
		var (
			pair, source string
			bid, ask     decimal.Decimal
		)
		if err := rows.Scan(&pair, &source, &bid, &ask); err != nil {
			return nil, fmt.Errorf("scan latest price: %w", err)
		}
		latest.Set(pair, model.Source(source), model.Quote{Bid: bid, Ask: ask})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest prices: %w", err)
	}
	return latest, nil
}
