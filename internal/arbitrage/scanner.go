package arbitrage

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"hermes/internal/config"
	"hermes/internal/model"
)

// MaxOpportunities caps how many opportunities one scan may return.
const MaxOpportunities = 2

// Scanner finds cross-source round-trips for the selected currencies.
type Scanner struct {
	logger *slog.Logger
	scorer Scorer
	pairs  map[string]config.PairMapping
	max    int
}

// NewScanner creates a Scanner from the arbitrage configuration.
func NewScanner(logger *slog.Logger, cfg config.ArbitrageConfig) *Scanner {
	limit := cfg.MaxOpportunities
	if limit <= 0 || limit > MaxOpportunities {
		limit = MaxOpportunities
	}
	return &Scanner{
		logger: logger,
		scorer: NewScorer(cfg.ConfidenceScale),
		pairs:  cfg.Pairs,
		max:    limit,
	}
}

// Pairs returns the trading pairs mapped to the given currencies, in order,
// without duplicates.
func (s *Scanner) Pairs(currencies []string) []string {
	out := make([]string, 0, len(currencies))
	seen := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		m, ok := s.pairs[c]
		if !ok {
			continue
		}
		if _, dup := seen[m.Pair]; dup {
			continue
		}
		seen[m.Pair] = struct{}{}
		out = append(out, m.Pair)
	}
	return out
}

// Scan returns at most two opportunities, highest confidence first. Ties keep
// the order of cfg.SelectedCurrencies.
func (s *Scanner) Scan(portfolio model.Portfolio, latest model.LatestPrices, cfg model.BotConfig) []model.Opportunity {
	size := decimal.NewFromFloat(cfg.TradeSizePercentage)
	var found []model.Opportunity

	for _, currency := range cfg.SelectedCurrencies {
		mapping, ok := s.pairs[currency]
		if !ok {
			s.logger.Debug("Scanner: no pair mapping", "currency", currency)
			continue
		}
		funds, ok := portfolio.Amount(mapping.Funding)
		if !ok || !funds.IsPositive() {
			s.logger.Debug("Scanner: no funding balance", "currency", currency, "funding", mapping.Funding)
			continue
		}
		quotes := latest[mapping.Pair]
		if len(quotes) < 2 {
			s.logger.Debug("Scanner: not enough sources", "pair", mapping.Pair, "sources", len(quotes))
			continue
		}

		buyAsk, sellBid := bestQuotes(quotes)
		if !buyAsk.IsPositive() || sellBid.LessThanOrEqual(buyAsk) {
			s.logger.Debug("Scanner: no spread", "pair", mapping.Pair, "buy_ask", buyAsk, "sell_bid", sellBid)
			continue
		}

		spread := sellBid.Sub(buyAsk).Div(buyAsk).InexactFloat64()
		confidence := s.scorer.Confidence(spread)
		if confidence < cfg.MinConfidenceScore {
			s.logger.Debug("Scanner: confidence below minimum", "pair", mapping.Pair, "confidence", confidence, "min", cfg.MinConfidenceScore)
			continue
		}

		amount := funds.Mul(size).Round(amountScale)
		if !amount.IsPositive() {
			continue
		}

		found = append(found, model.Opportunity{
			FromCurrency: mapping.Funding,
			ToCurrency:   currency,
			Pair:         mapping.Pair,
			Amount:       amount,
			BuyAsk:       buyAsk,
			SellBid:      sellBid,
			Confidence:   confidence,
		})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Confidence > found[j].Confidence })
	if len(found) > s.max {
		found = found[:s.max]
	}
	return found
}

// bestQuotes returns the lowest ask and the highest bid over all sources.
func bestQuotes(quotes map[model.Source]model.Quote) (buyAsk, sellBid decimal.Decimal) {
	first := true
	for _, q := range quotes {
		if first {
			buyAsk, sellBid = q.Ask, q.Bid
			first = false
			continue
		}
		if q.Ask.LessThan(buyAsk) {
			buyAsk = q.Ask
		}
		if q.Bid.GreaterThan(sellBid) {
			sellBid = q.Bid
		}
	}
	return buyAsk, sellBid
}
