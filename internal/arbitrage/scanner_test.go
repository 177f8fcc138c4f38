package arbitrage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/config"
	"hermes/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testArbitrageConfig() config.ArbitrageConfig {
	return config.ArbitrageConfig{
		ConfidenceScale:  5000,
		MaxOpportunities: 2,
		Pairs: map[string]config.PairMapping{
			"BTC": {Pair: "BTCUSD", Funding: "USD"},
			"ETH": {Pair: "ETHUSD", Funding: "USD"},
			"XRP": {Pair: "XRPUSD", Funding: "USD"},
			"EUR": {Pair: "EURUSD", Funding: "USD"},
		},
	}
}

func portfolio(amounts map[string]string) model.Portfolio {
	user := uuid.New()
	var balances []model.Balance
	for cur, amt := range amounts {
		balances = append(balances, model.Balance{UserID: user, Currency: cur, Amount: d(amt)})
	}
	return model.NewPortfolio(balances)
}

func quotes(pairs map[string][2][2]string) model.LatestPrices {
	latest := make(model.LatestPrices)
	for pair, q := range pairs {
		latest.Set(pair, model.SourcePrimary, model.Quote{Bid: d(q[0][0]), Ask: d(q[0][1])})
		latest.Set(pair, model.SourceSynthetic, model.Quote{Bid: d(q[1][0]), Ask: d(q[1][1])})
	}
	return latest
}

func TestScanner_ConcreteScenario(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	latest := quotes(map[string][2][2]string{
		"BTCUSD": {{"50000", "50010"}, {"50200", "50190"}},
	})
	cfg := model.BotConfig{
		MinConfidenceScore:  0.1,
		TradeSizePercentage: 0.1,
		SelectedCurrencies:  []string{"BTC"},
	}

	opps := s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg)
	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "BTCUSD", opp.Pair)
	assert.Equal(t, "USD", opp.FromCurrency)
	assert.Equal(t, "BTC", opp.ToCurrency)
	assert.True(t, opp.Amount.Equal(d("100")), "amount %s", opp.Amount)
	assert.True(t, opp.BuyAsk.Equal(d("50010")))
	assert.True(t, opp.SellBid.Equal(d("50200")))
	assert.Greater(t, opp.Confidence, 0.0)
	assert.LessOrEqual(t, opp.Confidence, 1.0)
}

func TestScanner_Skips(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	cfg := model.BotConfig{MinConfidenceScore: 0.1, TradeSizePercentage: 0.1, SelectedCurrencies: []string{"BTC"}}
	profitable := quotes(map[string][2][2]string{"BTCUSD": {{"100", "100"}, {"101", "101"}}})

	t.Run("no spread", func(t *testing.T) {
		latest := quotes(map[string][2][2]string{"BTCUSD": {{"100", "101"}, {"100.5", "101.5"}}})
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg))
	})

	t.Run("sell equals buy", func(t *testing.T) {
		latest := quotes(map[string][2][2]string{"BTCUSD": {{"100", "100"}, {"100", "100"}}})
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg))
	})

	t.Run("single source", func(t *testing.T) {
		latest := make(model.LatestPrices)
		latest.Set("BTCUSD", model.SourcePrimary, model.Quote{Bid: d("200"), Ask: d("100")})
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg))
	})

	t.Run("no funding balance", func(t *testing.T) {
		assert.Empty(t, s.Scan(portfolio(map[string]string{"EUR": "1000"}), profitable, cfg))
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "0"}), profitable, cfg))
	})

	t.Run("unmapped currency", func(t *testing.T) {
		cfg := cfg
		cfg.SelectedCurrencies = []string{"DOGE"}
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), profitable, cfg))
	})

	t.Run("below minimum confidence", func(t *testing.T) {
		latest := quotes(map[string][2][2]string{"BTCUSD": {{"100000", "100000"}, {"100001", "100001"}}})
		cfg := cfg
		cfg.MinConfidenceScore = 0.9
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg))
	})

	t.Run("zero ask", func(t *testing.T) {
		latest := quotes(map[string][2][2]string{"BTCUSD": {{"1", "0"}, {"2", "3"}}})
		assert.Empty(t, s.Scan(portfolio(map[string]string{"USD": "1000"}), latest, cfg))
	})
}

func TestScanner_CapAndOrder(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	latest := quotes(map[string][2][2]string{
		"BTCUSD": {{"100000", "100000"}, {"100005", "100005"}}, // 0.005% -> 0.25
		"ETHUSD": {{"100", "100"}, {"101", "101"}},             // 1% -> 1
		"XRPUSD": {{"100000", "100000"}, {"100010", "100010"}}, // 0.01% -> 0.5
		"EURUSD": {{"100000", "100000"}, {"100001", "100001"}}, // 0.001% -> 0.05
	})
	cfg := model.BotConfig{
		MinConfidenceScore:  0,
		TradeSizePercentage: 0.5,
		SelectedCurrencies:  []string{"BTC", "ETH", "XRP", "EUR"},
	}

	opps := s.Scan(portfolio(map[string]string{"USD": "10"}), latest, cfg)
	require.Len(t, opps, 2)
	assert.Equal(t, "ETHUSD", opps[0].Pair)
	assert.Equal(t, "XRPUSD", opps[1].Pair)
	assert.GreaterOrEqual(t, opps[0].Confidence, opps[1].Confidence)
	assert.True(t, opps[0].Amount.Equal(d("5")))
}

func TestScanner_TiesKeepSelectionOrder(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	latest := quotes(map[string][2][2]string{
		"BTCUSD": {{"100", "100"}, {"101", "101"}},
		"ETHUSD": {{"100", "100"}, {"102", "102"}},
		"XRPUSD": {{"100", "100"}, {"103", "103"}},
	})
	cfg := model.BotConfig{TradeSizePercentage: 0.1, SelectedCurrencies: []string{"XRP", "BTC", "ETH"}}

	for range 20 {
		opps := s.Scan(portfolio(map[string]string{"USD": "100"}), latest, cfg)
		require.Len(t, opps, 2)
		assert.Equal(t, "XRPUSD", opps[0].Pair)
		assert.Equal(t, "BTCUSD", opps[1].Pair)
	}
}

func TestScanner_MaxOpportunitiesIsCapped(t *testing.T) {
	cfg := testArbitrageConfig()
	cfg.MaxOpportunities = 10
	assert.Equal(t, MaxOpportunities, NewScanner(quietLogger(), cfg).max)
	cfg.MaxOpportunities = 1
	assert.Equal(t, 1, NewScanner(quietLogger(), cfg).max)
}

func TestScanner_Pairs(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	assert.Equal(t, []string{"ETHUSD", "BTCUSD"}, s.Pairs([]string{"ETH", "DOGE", "BTC", "ETH"}))
	assert.Empty(t, s.Pairs(nil))
}

func TestScanner_AmountFitsLedgerScale(t *testing.T) {
	s := NewScanner(quietLogger(), testArbitrageConfig())
	latest := quotes(map[string][2][2]string{"BTCUSD": {{"100", "100"}, {"101", "101"}}})
	cfg := model.BotConfig{TradeSizePercentage: 0.123456789, SelectedCurrencies: []string{"BTC"}}

	funds := d("1000.123456789012")
	opps := s.Scan(portfolio(map[string]string{"USD": funds.String()}), latest, cfg)
	require.Len(t, opps, 1)

	amount := opps[0].Amount
	assert.GreaterOrEqual(t, amount.Exponent(), int32(-amountScale), "amount %s", amount)
	assert.True(t, amount.Equal(funds.Mul(decimal.NewFromFloat(0.123456789)).Round(amountScale)))
}
