package main

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/model"
)

type memConfigStore struct {
	cfg model.BotConfig
}

func (m *memConfigStore) LoadBotConfig(context.Context) (model.BotConfig, error) { return m.cfg, nil }

func (m *memConfigStore) SaveBotConfig(_ context.Context, cfg model.BotConfig) error {
	m.cfg = cfg
	return nil
}

func TestParseFund(t *testing.T) {
	cur, amt, err := parseFund(" usd = 1000.50 ")
	require.NoError(t, err)
	assert.Equal(t, "USD", cur)
	assert.Equal(t, "1000.5", amt.String())

	for _, bad := range []string{"USD", "=10", "USD=abc", "USD=0", "USD=-5"} {
		_, _, err := parseFund(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyOverrides(t *testing.T) {
	store := &memConfigStore{cfg: model.BotConfig{
		RiskTolerance:        0.5,
		MinConfidenceScore:   0.6,
		TradeSizePercentage:  0.1,
		SelectedCurrencies:   []string{"BTC"},
		CheckIntervalSeconds: 60,
	}}

	var opts options
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64Var(&opts.riskLevel, "risk-level", 0, "")
	flags.Float64Var(&opts.minConfidence, "min-confidence", 0, "")
	flags.IntVar(&opts.interval, "interval", 0, "")
	flags.StringArrayVar(&opts.addCurrencies, "add-currency", nil, "")
	require.NoError(t, flags.Parse([]string{"--min-confidence", "0.2", "--interval", "5", "--add-currency", "eth", "--add-currency", "btc"}))

	require.NoError(t, applyOverrides(context.Background(), store, opts, flags))
	assert.True(t, store.cfg.IsActive)
	assert.Equal(t, 0.5, store.cfg.RiskTolerance)
	assert.Equal(t, 0.2, store.cfg.MinConfidenceScore)
	assert.Equal(t, 5, store.cfg.CheckIntervalSeconds)
	assert.Equal(t, []string{"BTC", "ETH"}, store.cfg.SelectedCurrencies)

	require.NoError(t, setActive(context.Background(), store, false))
	assert.False(t, store.cfg.IsActive)
}

func TestBotUserID(t *testing.T) {
	a, err := botUserID("")
	require.NoError(t, err)
	b, _ := botUserID("")
	assert.Equal(t, a, b)

	_, err = botUserID("not-a-uuid")
	assert.Error(t, err)
}
