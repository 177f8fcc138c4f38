package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BotConfig is the dashboard-owned singleton the bot reads every iteration.
type BotConfig struct {
	IsActive             bool
	RiskTolerance        float64
	MinConfidenceScore   float64
	TradeSizePercentage  float64
	SelectedCurrencies   []string
	CheckIntervalSeconds int
}

// SelectedCurrenciesString renders the selection in its stored form.
func (c BotConfig) SelectedCurrenciesString() string {
	return strings.Join(c.SelectedCurrencies, ",")
}

// ParseCurrencies turns "btc, ETH,,btc" into [BTC ETH]: upper-cased,
// trimmed, empty entries dropped, first occurrence wins.
func ParseCurrencies(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		c := strings.ToUpper(strings.TrimSpace(p))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Portfolio is an immutable currency -> amount view of a user's balances,
// built once per scan.
type Portfolio struct {
	amounts map[string]decimal.Decimal
}

// NewPortfolio copies balances into a Portfolio.
func NewPortfolio(balances []Balance) Portfolio {
	m := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		m[b.Currency] = b.Amount
	}
	return Portfolio{amounts: m}
}

// Amount returns the holding for currency and whether one exists.
func (p Portfolio) Amount(currency string) (decimal.Decimal, bool) {
	a, ok := p.amounts[currency]
	return a, ok
}

// Len reports the number of currencies held.
func (p Portfolio) Len() int { return len(p.amounts) }
