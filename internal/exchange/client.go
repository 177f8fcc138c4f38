package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

var (
	// ErrNoTickers is returned when an exchange has no quotes to report.
	ErrNoTickers = errors.New("exchange: no tickers available")
	// ErrOrdersUnsupported is returned by clients that only stream prices.
	ErrOrdersUnsupported = errors.New("exchange: order placement not supported")
)

// TickerFetcher returns the current quote of every pair the venue lists.
type TickerFetcher interface {
	FetchAllTickers(ctx context.Context) ([]model.Ticker, error)
}

// OrderPlacer submits a market order for amount of currency.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, currency string, amount decimal.Decimal, side model.Operation) (*model.OrderReceipt, error)
}

// ExchangeClient defines the standard interface for all exchange clients.
type ExchangeClient interface {
	GetName() string
	TickerFetcher
	OrderPlacer
}

// Streamer is implemented by clients that need a background connection.
type Streamer interface {
	Run(ctx context.Context) error
}
