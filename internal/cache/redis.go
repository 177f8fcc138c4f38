package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"hermes/internal/database"
	"hermes/internal/model"
)

// RedisPriceStore is a write-through cache of the latest quote per
// (pair, source) in front of a database.PriceStore. The store stays the
// source of truth; the cache only shortcuts LatestPrices.
type RedisPriceStore struct {
	rdb    *redis.Client
	store  database.PriceStore
	ttl    time.Duration
	logger *slog.Logger
}

type redisQuote struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
	Ts  int64           `json:"ts"` // unix nano of the observation
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisPriceStore wraps store with a Redis cache whose entries expire after ttl.
func NewRedisPriceStore(logger *slog.Logger, rdb *redis.Client, store database.PriceStore, ttl time.Duration) *RedisPriceStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisPriceStore{rdb: rdb, store: store, ttl: ttl, logger: logger}
}

func latestKey(pair string) string { return "latest:" + pair }

// InsertSnapshots writes to the store first; only a successful store write is
// mirrored into Redis. A cache failure is logged, never returned.
func (c *RedisPriceStore) InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error {
	if err := c.store.InsertSnapshots(ctx, snapshots); err != nil {
		return err
	}
	if err := c.put(ctx, snapshots); err != nil {
		c.logger.Warn("RedisPriceStore: failed to cache snapshots", "error", err)
	}
	return nil
}

func (c *RedisPriceStore) put(ctx context.Context, snapshots []model.PriceSnapshot) error {
	pipe := c.rdb.Pipeline()
	for _, s := range snapshots {
		b, err := json.Marshal(redisQuote{Bid: s.Bid, Ask: s.Ask, Ts: s.ObservedAt.UnixNano()})
		if err != nil {
			return fmt.Errorf("encode quote %s/%s: %w", s.Pair, s.Source, err)
		}
		key := latestKey(s.Pair)
		pipe.HSet(ctx, key, string(s.Source), b)
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LatestPrices serves pairs from Redis and asks the store for any pair the
// cache does not hold.
func (c *RedisPriceStore) LatestPrices(ctx context.Context, pairs []string) (model.LatestPrices, error) {
	latest := make(model.LatestPrices)
	missing := pairs

	cached, err := c.fetch(ctx, pairs)
	if err != nil {
		c.logger.Warn("RedisPriceStore: cache read failed, using store", "error", err)
	} else {
		missing = nil
		for _, pair := range pairs {
			bySource, ok := cached[pair]
			if !ok {
				missing = append(missing, pair)
				continue
			}
			latest[pair] = bySource
		}
	}

	if len(missing) == 0 {
		return latest, nil
	}
	fromStore, err := c.store.LatestPrices(ctx, missing)
	if err != nil {
		return nil, err
	}
	for pair, bySource := range fromStore {
		latest[pair] = bySource
	}
	return latest, nil
}

func (c *RedisPriceStore) fetch(ctx context.Context, pairs []string) (model.LatestPrices, error) {
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(pairs))
	for i, pair := range pairs {
		cmds[i] = pipe.HGetAll(ctx, latestKey(pair))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(model.LatestPrices)
	for i, cmd := range cmds {
		for source, raw := range cmd.Val() {
			var q redisQuote
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			out.Set(pairs[i], model.Source(source), model.Quote{Bid: q.Bid, Ask: q.Ask})
		}
	}
	return out, nil
}

// Health checks the Redis connection.
func (c *RedisPriceStore) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
