package arbitrage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"hermes/internal/database"
	"hermes/internal/model"
)

// OpportunityExecutor settles a single opportunity.
type OpportunityExecutor interface {
	Execute(ctx context.Context, opp model.Opportunity) bool
}

// ArbitrageEngine runs one scan-and-execute pass per call.
type ArbitrageEngine struct {
	logger   *slog.Logger
	balances database.BalanceStore
	prices   database.PriceStore
	scanner  *Scanner
	executor OpportunityExecutor
	userID   uuid.UUID

	// DryRun logs opportunities without executing them.
	DryRun bool
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine.
func NewArbitrageEngine(logger *slog.Logger, balances database.BalanceStore, prices database.PriceStore, scanner *Scanner, executor OpportunityExecutor, userID uuid.UUID) *ArbitrageEngine {
	return &ArbitrageEngine{
		logger:   logger,
		balances: balances,
		prices:   prices,
		scanner:  scanner,
		executor: executor,
		userID:   userID,
	}
}

// RunIteration scans the latest prices against the user's balances and
// executes what it finds. It returns how many round-trips were executed.
func (e *ArbitrageEngine) RunIteration(ctx context.Context, cfg model.BotConfig) (int, error) {
	balances, err := e.balances.Balances(ctx, e.userID)
	if err != nil {
		return 0, fmt.Errorf("load balances: %w", err)
	}
	portfolio := model.NewPortfolio(balances)
	if portfolio.Len() == 0 {
		e.logger.Debug("ArbitrageEngine: no balances, nothing to trade", "user", e.userID)
		return 0, nil
	}

	pairs := e.scanner.Pairs(cfg.SelectedCurrencies)
	if len(pairs) == 0 {
		e.logger.Debug("ArbitrageEngine: no mapped pairs for selection", "selected", cfg.SelectedCurrencies)
		return 0, nil
	}
	latest, err := e.prices.LatestPrices(ctx, pairs)
	if err != nil {
		return 0, fmt.Errorf("load latest prices: %w", err)
	}

	opportunities := e.scanner.Scan(portfolio, latest, cfg)
	executed := 0
	for _, opp := range opportunities {
		e.logger.Info("Arbitrage opportunity found",
			"pair", opp.Pair,
			"buyAsk", opp.BuyAsk,
			"sellBid", opp.SellBid,
			"amount", opp.Amount,
			"confidence", opp.Confidence,
		)
		if e.DryRun {
			continue
		}
		if e.executor.Execute(ctx, opp) {
			executed++
		}
	}
	return executed, nil
}
