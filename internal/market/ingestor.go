package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/config"
	"hermes/internal/database"
	"hermes/internal/exchange"
	"hermes/internal/model"
)

// ErrFetchFailed is returned when every ticker fetch attempt failed.
var ErrFetchFailed = errors.New("ticker fetch failed")

// Ingestor pulls tickers from the upstream exchange and stores a primary and
// a synthetic snapshot for every accepted pair.
type Ingestor struct {
	logger  *slog.Logger
	fetcher exchange.TickerFetcher
	store   database.PriceStore
	synth   SecondarySourceSynthesizer

	attempts int
	backoff  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIngestor creates a new Ingestor.
func NewIngestor(logger *slog.Logger, fetcher exchange.TickerFetcher, store database.PriceStore, synth SecondarySourceSynthesizer, cfg config.IngestConfig) *Ingestor {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Ingestor{
		logger:   logger,
		fetcher:  fetcher,
		store:    store,
		synth:    synth,
		attempts: attempts,
		backoff:  cfg.RetryBackoff,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Refresh fetches tickers once (with retries), keeps the pairs mentioning an
// allowed currency and writes their snapshots in one batch. It returns the
// number of rows written. On failure nothing is written.
func (i *Ingestor) Refresh(ctx context.Context, allowed []string) (int, error) {
	tickers, err := i.fetch(ctx)
	if err != nil {
		return 0, err
	}

	observedAt := i.now().UTC()
	snapshots := make([]model.PriceSnapshot, 0, 2*len(tickers))
	for _, t := range tickers {
		if !mentionsAny(t.Pair, allowed) {
			continue
		}
		quote, ok := parseQuote(t)
		if !ok {
			i.logger.Debug("Ingestor: discarding ticker with invalid quote", "pair", t.Pair, "bid", t.Bid, "ask", t.Ask)
			continue
		}
		synthetic := i.synth.Synthesize(t.Pair, quote)
		snapshots = append(snapshots,
			model.PriceSnapshot{
				Pair: t.Pair, Currency: t.Currency, Source: model.SourcePrimary,
				Bid: quote.Bid, Ask: quote.Ask, ObservedAt: observedAt,
			},
			model.PriceSnapshot{
				Pair: t.Pair, Currency: t.Currency, Source: i.synth.Source(),
				Bid: synthetic.Bid, Ask: synthetic.Ask, ObservedAt: observedAt,
			},
		)
	}

	if len(snapshots) == 0 {
		i.logger.Info("Ingestor: no tickers matched the allowed currencies", "allowed", allowed, "fetched", len(tickers))
		return 0, nil
	}
	if err := i.store.InsertSnapshots(ctx, snapshots); err != nil {
		return 0, fmt.Errorf("store snapshots: %w", err)
	}
	i.logger.Info("Ingestor: price refresh complete", "snapshots", len(snapshots))
	return len(snapshots), nil
}

func (i *Ingestor) fetch(ctx context.Context) ([]model.Ticker, error) {
	var lastErr error
	for attempt := 1; attempt <= i.attempts; attempt++ {
		tickers, err := i.fetcher.FetchAllTickers(ctx)
		if err == nil {
			return tickers, nil
		}
		lastErr = err
		i.logger.Warn("Ingestor: ticker fetch failed", "attempt", attempt, "of", i.attempts, "error", err)
		if attempt == i.attempts {
			break
		}
		if err := i.sleep(ctx, i.backoff*time.Duration(attempt)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchFailed, i.attempts, lastErr)
}

func mentionsAny(pair string, currencies []string) bool {
	pair = strings.ToUpper(pair)
	for _, c := range currencies {
		if c != "" && strings.Contains(pair, strings.ToUpper(c)) {
			return true
		}
	}
	return false
}

func parseQuote(t model.Ticker) (model.Quote, bool) {
	bid, err := decimal.NewFromString(strings.TrimSpace(t.Bid))
	if err != nil || bid.IsNegative() {
		return model.Quote{}, false
	}
	ask, err := decimal.NewFromString(strings.TrimSpace(t.Ask))
	if err != nil || ask.IsNegative() {
		return model.Quote{}, false
	}
	return model.Quote{Bid: bid, Ask: ask}, true
}
