package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"hermes/internal/model"
)

var rdb *redis.Client

type MockPriceStore struct {
	mock.Mock
}

func (m *MockPriceStore) InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockPriceStore) LatestPrices(ctx context.Context, pairs []string) (model.LatestPrices, error) {
	args := m.Called(ctx, pairs)
	latest, _ := args.Get(0).(model.LatestPrices)
	return latest, args.Error(1)
}

func TestMain(m *testing.M) {
	os.Exit(runWithRedis(m))
}

func runWithRedis(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start redis container: %s", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("could not stop redis container: %s", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		log.Fatalf("could not get redis endpoint: %s", err)
	}
	rdb, err = NewRedisClient(ctx, endpoint, "", 0)
	if err != nil {
		log.Fatalf("could not connect to redis: %s", err)
	}
	defer rdb.Close()

	return m.Run()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func snapshot(pair string, source model.Source, bid, ask int64) model.PriceSnapshot {
	return model.PriceSnapshot{
		Pair: pair, Currency: "USD", Source: source,
		Bid: decimal.NewFromInt(bid), Ask: decimal.NewFromInt(ask),
		ObservedAt: time.Now(),
	}
}

func TestRedisPriceStore_WriteThroughAndRead(t *testing.T) {
	ctx := context.Background()
	store := new(MockPriceStore)
	c := NewRedisPriceStore(quietLogger(), rdb, store, time.Minute)

	snaps := []model.PriceSnapshot{
		snapshot("WTBTCUSD", model.SourcePrimary, 50000, 50010),
		snapshot("WTBTCUSD", model.SourceSynthetic, 50200, 50190),
	}
	store.On("InsertSnapshots", mock.Anything, snaps).Return(nil).Once()

	require.NoError(t, c.InsertSnapshots(ctx, snaps))

	latest, err := c.LatestPrices(ctx, []string{"WTBTCUSD"})
	require.NoError(t, err)
	require.Len(t, latest["WTBTCUSD"], 2)
	assert.True(t, latest["WTBTCUSD"][model.SourceSynthetic].Bid.Equal(decimal.NewFromInt(50200)))
	assert.True(t, latest["WTBTCUSD"][model.SourcePrimary].Ask.Equal(decimal.NewFromInt(50010)))

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "LatestPrices", mock.Anything, mock.Anything)
}

func TestRedisPriceStore_StoreFailureSkipsCache(t *testing.T) {
	ctx := context.Background()
	store := new(MockPriceStore)
	c := NewRedisPriceStore(quietLogger(), rdb, store, time.Minute)

	snaps := []model.PriceSnapshot{snapshot("SFETHUSD", model.SourcePrimary, 3000, 3001)}
	store.On("InsertSnapshots", mock.Anything, snaps).Return(errors.New("db down")).Once()

	assert.Error(t, c.InsertSnapshots(ctx, snaps))

	n, err := rdb.Exists(ctx, latestKey("SFETHUSD")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisPriceStore_FallsBackForMissingPairs(t *testing.T) {
	ctx := context.Background()
	store := new(MockPriceStore)
	c := NewRedisPriceStore(quietLogger(), rdb, store, time.Minute)

	cachedSnaps := []model.PriceSnapshot{snapshot("FBBTCUSD", model.SourcePrimary, 100, 101)}
	store.On("InsertSnapshots", mock.Anything, cachedSnaps).Return(nil).Once()
	require.NoError(t, c.InsertSnapshots(ctx, cachedSnaps))

	fromStore := make(model.LatestPrices)
	fromStore.Set("FBXRPUSD", model.SourcePrimary, model.Quote{Bid: decimal.NewFromInt(1), Ask: decimal.NewFromInt(2)})
	store.On("LatestPrices", mock.Anything, []string{"FBXRPUSD"}).Return(fromStore, nil).Once()

	latest, err := c.LatestPrices(ctx, []string{"FBBTCUSD", "FBXRPUSD"})
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	assert.True(t, latest["FBXRPUSD"][model.SourcePrimary].Ask.Equal(decimal.NewFromInt(2)))
	store.AssertExpectations(t)
}
