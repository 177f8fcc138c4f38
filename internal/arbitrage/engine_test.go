package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hermes/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Balances(ctx context.Context, userID uuid.UUID) ([]model.Balance, error) {
	args := m.Called(ctx, userID)
	balances, _ := args.Get(0).([]model.Balance)
	return balances, args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, currency, amount)
	return args.Error(0)
}

func (m *MockRepository) InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockRepository) LatestPrices(ctx context.Context, pairs []string) (model.LatestPrices, error) {
	args := m.Called(ctx, pairs)
	latest, _ := args.Get(0).(model.LatestPrices)
	return latest, args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, opp model.Opportunity) bool {
	args := m.Called(ctx, opp)
	return args.Bool(0)
}

func TestArbitrageEngine_RunIteration(t *testing.T) {
	user := uuid.New()
	cfg := model.BotConfig{
		MinConfidenceScore:  0.1,
		TradeSizePercentage: 0.1,
		SelectedCurrencies:  []string{"BTC", "ETH"},
	}
	balances := []model.Balance{{UserID: user, Currency: "USD", Amount: d("1000")}}
	latest := quotes(map[string][2][2]string{
		"BTCUSD": {{"50000", "50010"}, {"50200", "50190"}},
		"ETHUSD": {{"3000", "3001"}, {"2999", "3002"}},
	})

	newEngine := func() (*ArbitrageEngine, *MockRepository, *MockExecutor) {
		repo := new(MockRepository)
		exec := new(MockExecutor)
		scanner := NewScanner(quietLogger(), testArbitrageConfig())
		return NewArbitrageEngine(quietLogger(), repo, repo, scanner, exec, user), repo, exec
	}

	t.Run("executes found opportunity", func(t *testing.T) {
		engine, repo, exec := newEngine()
		repo.On("Balances", mock.Anything, user).Return(balances, nil).Once()
		repo.On("LatestPrices", mock.Anything, []string{"BTCUSD", "ETHUSD"}).Return(latest, nil).Once()
		exec.On("Execute", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
			return o.Pair == "BTCUSD" && o.Amount.Equal(d("100"))
		})).Return(true).Once()

		n, err := engine.RunIteration(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		repo.AssertExpectations(t)
		exec.AssertExpectations(t)
	})

	t.Run("failed execution is not counted", func(t *testing.T) {
		engine, repo, exec := newEngine()
		repo.On("Balances", mock.Anything, user).Return(balances, nil).Once()
		repo.On("LatestPrices", mock.Anything, mock.Anything).Return(latest, nil).Once()
		exec.On("Execute", mock.Anything, mock.Anything).Return(false).Once()

		n, err := engine.RunIteration(context.Background(), cfg)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("dry run never executes", func(t *testing.T) {
		engine, repo, exec := newEngine()
		engine.DryRun = true
		repo.On("Balances", mock.Anything, user).Return(balances, nil).Once()
		repo.On("LatestPrices", mock.Anything, mock.Anything).Return(latest, nil).Once()

		n, err := engine.RunIteration(context.Background(), cfg)
		require.NoError(t, err)
		assert.Zero(t, n)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("no balances skips price lookup", func(t *testing.T) {
		engine, repo, exec := newEngine()
		repo.On("Balances", mock.Anything, user).Return([]model.Balance{}, nil).Once()

		n, err := engine.RunIteration(context.Background(), cfg)
		require.NoError(t, err)
		assert.Zero(t, n)
		repo.AssertNotCalled(t, "LatestPrices", mock.Anything, mock.Anything)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("store errors are returned", func(t *testing.T) {
		engine, repo, _ := newEngine()
		repo.On("Balances", mock.Anything, user).Return(nil, errors.New("conn reset")).Once()
		_, err := engine.RunIteration(context.Background(), cfg)
		assert.Error(t, err)

		repo.On("Balances", mock.Anything, user).Return(balances, nil).Once()
		repo.On("LatestPrices", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
		_, err = engine.RunIteration(context.Background(), cfg)
		assert.Error(t, err)
	})
}
