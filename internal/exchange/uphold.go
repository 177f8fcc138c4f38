package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

// UpholdClient implements the ExchangeClient interface over the Uphold REST API.
type UpholdClient struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewUpholdClient creates a new UpholdClient. Requests time out after timeout.
func NewUpholdClient(logger *slog.Logger, baseURL, apiKey string, timeout time.Duration) *UpholdClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UpholdClient{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (u *UpholdClient) GetName() string {
	return "uphold"
}

// rawTicker keeps bid/ask undecoded: the API sends them as strings, but a
// single malformed entry must not fail the whole response.
type rawTicker struct {
	Pair     string          `json:"pair"`
	Currency string          `json:"currency"`
	Bid      json.RawMessage `json:"bid"`
	Ask      json.RawMessage `json:"ask"`
}

// FetchAllTickers calls GET /ticker once.
func (u *UpholdClient) FetchAllTickers(ctx context.Context) ([]model.Ticker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/ticker", nil)
	if err != nil {
		return nil, fmt.Errorf("build ticker request: %w", err)
	}
	u.authorize(req)

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch tickers: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []rawTicker
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoTickers
	}

	tickers := make([]model.Ticker, 0, len(raw))
	for _, r := range raw {
		tickers = append(tickers, model.Ticker{
			Pair:     r.Pair,
			Currency: r.Currency,
			Bid:      rawString(r.Bid),
			Ask:      rawString(r.Ask),
		})
	}
	u.logger.Debug("UpholdClient: fetched tickers", "count", len(tickers))
	return tickers, nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type orderRequest struct {
	Denomination string `json:"denomination"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
}

// PlaceOrder calls POST /orders.
func (u *UpholdClient) PlaceOrder(ctx context.Context, currency string, amount decimal.Decimal, side model.Operation) (*model.OrderReceipt, error) {
	payload, err := json.Marshal(orderRequest{
		Denomination: strings.ToUpper(currency),
		Amount:       amount.String(),
		Direction:    strings.ToLower(string(side)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	u.authorize(req)

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("place order: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var receipt model.OrderReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode order receipt: %w", err)
	}
	return &receipt, nil
}

func (u *UpholdClient) authorize(req *http.Request) {
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}
}
