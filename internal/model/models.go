package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source identifies the venue a quote came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSynthetic Source = "synthetic"
)

// Operation is the side of a trade leg.
type Operation string

const (
	OperationBuy  Operation = "BUY"
	OperationSell Operation = "SELL"
)

// TradeStatus is the outcome recorded for a trade leg.
type TradeStatus string

const (
	StatusExecuted TradeStatus = "EXECUTED"
	StatusFailed   TradeStatus = "FAILED"
)

// Ticker is a raw quote as returned by the upstream exchange.
// Bid and Ask are kept as strings until the ingestor validates them.
type Ticker struct {
	Pair     string `json:"pair"`
	Currency string `json:"currency"`
	Bid      string `json:"bid"`
	Ask      string `json:"ask"`
}

// PriceSnapshot is one immutable price observation for a pair on a source.
type PriceSnapshot struct {
	ID         int64           `db:"id"`
	Pair       string          `db:"pair"`
	Currency   string          `db:"currency"`
	Bid        decimal.Decimal `db:"bid"`
	Ask        decimal.Decimal `db:"ask"`
	Source     Source          `db:"source"`
	ObservedAt time.Time       `db:"observed_at"`
}

// Quote is the bid/ask pair of the latest snapshot of a (pair, source).
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// LatestPrices maps pair -> source -> most recent quote.
type LatestPrices map[string]map[Source]Quote

// Set records q as the latest quote for pair on source.
func (l LatestPrices) Set(pair string, source Source, q Quote) {
	bySource, ok := l[pair]
	if !ok {
		bySource = make(map[Source]Quote)
		l[pair] = bySource
	}
	bySource[source] = q
}

// Balance is a user's holding of a single currency.
type Balance struct {
	UserID    uuid.UUID       `db:"user_id"`
	Currency  string          `db:"currency"`
	Amount    decimal.Decimal `db:"amount"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// TradeRecord is one leg of an executed round-trip.
type TradeRecord struct {
	ID               int64           `db:"id"`
	UserID           uuid.UUID       `db:"user_id"`
	Pair             string          `db:"pair"`
	Operation        Operation       `db:"operation"`
	Amount           decimal.Decimal `db:"amount"`
	PriceAtExecution decimal.Decimal `db:"price_at_execution"`
	Status           TradeStatus     `db:"status"`
	ConfidenceScore  float64         `db:"confidence_score"`
	Profit           decimal.Decimal `db:"profit"`
	Reason           string          `db:"reason"`
	Timestamp        time.Time       `db:"timestamp"`
}

// Opportunity is a detected cross-source round-trip on one pair.
type Opportunity struct {
	FromCurrency string
	ToCurrency   string
	Pair         string
	Amount       decimal.Decimal
	BuyAsk       decimal.Decimal
	SellBid      decimal.Decimal
	Confidence   float64
}

// OrderReceipt is what the upstream exchange returns for a placed order.
type OrderReceipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
