package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

const maxStreamBackoff = 16 * time.Second

// StreamClient implements the ExchangeClient interface on a WebSocket
// book-ticker feed. Run keeps the connection alive and records the latest
// quote per symbol; FetchAllTickers reads those quotes.
type StreamClient struct {
	logger *slog.Logger
	url    string
	quotes []string

	// Subscription is sent right after each successful dial when set.
	Subscription any
	// StaleAfter drops quotes that have not been updated for this long.
	StaleAfter time.Duration

	dialer *websocket.Dialer

	mu     sync.RWMutex
	latest map[string]streamQuote
}

type streamQuote struct {
	ticker model.Ticker
	at     time.Time
}

// bookTicker is the Binance-style payload: {"s":"BTCUSDT","b":"...","a":"..."}.
type bookTicker struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// NewStreamClient creates a StreamClient. quotes lists the quote currencies
// used to derive a ticker's currency from its symbol suffix.
func NewStreamClient(logger *slog.Logger, url string, quotes []string) *StreamClient {
	return &StreamClient{
		logger:     logger,
		url:        url,
		quotes:     quotes,
		StaleAfter: time.Minute,
		dialer:     websocket.DefaultDialer,
		latest:     make(map[string]streamQuote),
	}
}

func (s *StreamClient) GetName() string {
	return "stream"
}

// Run connects to the feed and reconnects with exponential backoff until ctx is done.
func (s *StreamClient) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			s.logger.Info("StreamClient: context cancelled, shutting down")
			return nil
		}

		s.logger.Info("StreamClient: connecting to WebSocket", "url", s.url, "backoff", backoff)
		c, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil && s.Subscription != nil {
			if err = c.WriteJSON(s.Subscription); err != nil {
				c.Close()
				err = fmt.Errorf("send subscription: %w", err)
			}
		}
		if err != nil {
			s.logger.Error("StreamClient: WebSocket connection failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = min(backoff*2, maxStreamBackoff)
			}
			continue
		}

		// Reset backoff on successful connection
		backoff = time.Second
		s.logger.Info("StreamClient: connected successfully")

		if err := s.readLoop(ctx, c); err != nil && ctx.Err() == nil {
			s.logger.Error("StreamClient: failed to read message", "error", err)
		}
	}
}

func (s *StreamClient) readLoop(ctx context.Context, c *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	defer c.Close()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}

		var bt bookTicker
		if err := json.Unmarshal(message, &bt); err != nil {
			s.logger.Warn("StreamClient: failed to parse message", "error", err)
			continue
		}
		if bt.Symbol == "" {
			continue
		}
		s.record(bt, time.Now())
	}
}

func (s *StreamClient) record(bt bookTicker, at time.Time) {
	symbol := strings.ToUpper(bt.Symbol)
	t := model.Ticker{
		Pair:     symbol,
		Currency: s.quoteOf(symbol),
		Bid:      bt.Bid,
		Ask:      bt.Ask,
	}
	s.mu.Lock()
	s.latest[symbol] = streamQuote{ticker: t, at: at}
	s.mu.Unlock()
	s.logger.Debug("StreamClient: recorded price tick", "pair", symbol, "bid", bt.Bid, "ask", bt.Ask)
}

func (s *StreamClient) quoteOf(symbol string) string {
	for _, q := range s.quotes {
		q = strings.ToUpper(q)
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return q
		}
	}
	return ""
}

// FetchAllTickers returns the fresh quotes received so far, sorted by pair.
func (s *StreamClient) FetchAllTickers(ctx context.Context) ([]model.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-s.StaleAfter)

	s.mu.RLock()
	tickers := make([]model.Ticker, 0, len(s.latest))
	for _, q := range s.latest {
		if s.StaleAfter > 0 && q.at.Before(cutoff) {
			continue
		}
		tickers = append(tickers, q.ticker)
	}
	s.mu.RUnlock()

	if len(tickers) == 0 {
		return nil, ErrNoTickers
	}
	sort.Slice(tickers, func(i, j int) bool { return tickers[i].Pair < tickers[j].Pair })
	return tickers, nil
}

func (s *StreamClient) PlaceOrder(ctx context.Context, currency string, amount decimal.Decimal, side model.Operation) (*model.OrderReceipt, error) {
	return nil, ErrOrdersUnsupported
}
