package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hermes/internal/database"
	"hermes/internal/exchange"
	"hermes/internal/model"
)

// amountScale matches the NUMERIC(30, 12) ledger columns.
const amountScale = 12

var (
	errInsufficientFunds = errors.New("insufficient funds")
	errUnprofitable      = errors.New("round-trip returns less than it spends")
)

// Executor settles opportunities against the user's balance ledger.
type Executor struct {
	logger *slog.Logger
	ledger database.Ledger
	placer exchange.OrderPlacer
	userID uuid.UUID
	now    func() time.Time
}

// NewExecutor creates an Executor for userID. placer may be nil, in which
// case no orders are sent upstream.
func NewExecutor(logger *slog.Logger, ledger database.Ledger, placer exchange.OrderPlacer, userID uuid.UUID) *Executor {
	return &Executor{
		logger: logger,
		ledger: ledger,
		placer: placer,
		userID: userID,
		now:    time.Now,
	}
}

// Execute runs one round-trip in a single transaction. It returns true when
// the balance was updated and both trade legs were recorded; on false nothing
// was changed.
func (e *Executor) Execute(ctx context.Context, opp model.Opportunity) (executed bool) {
	log := e.logger.With("pair", opp.Pair, "funding", opp.FromCurrency, "amount", opp.Amount)
	if !opp.Amount.IsPositive() {
		log.Warn("Executor: ignoring opportunity with non-positive amount")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Executor: panic during execution, transaction rolled back", "panic", r)
			executed = false
		}
	}()

	var profit decimal.Decimal
	err := e.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		balance, ok, err := tx.LockBalance(ctx, e.userID, opp.FromCurrency)
		if err != nil {
			return err
		}
		if !ok || balance.LessThan(opp.Amount) {
			return errInsufficientFunds
		}

		if !opp.BuyAsk.IsPositive() {
			return errUnprofitable
		}
		returned := opp.Amount.Mul(opp.SellBid).Div(opp.BuyAsk).Round(amountScale)
		if returned.LessThan(opp.Amount) {
			return errUnprofitable
		}
		profit = returned.Sub(opp.Amount)

		e.placeOrders(ctx, opp, log)

		if err := tx.SetBalance(ctx, e.userID, opp.FromCurrency, balance.Sub(opp.Amount).Add(returned)); err != nil {
			return err
		}

		at := e.now().UTC()
		return tx.InsertTrades(ctx,
			model.TradeRecord{
				UserID:           e.userID,
				Pair:             opp.Pair,
				Operation:        model.OperationBuy,
				Amount:           opp.Amount,
				PriceAtExecution: opp.BuyAsk,
				Status:           model.StatusExecuted,
				ConfidenceScore:  opp.Confidence,
				Profit:           decimal.Zero,
				Reason:           fmt.Sprintf("buy %s on the cheaper source", opp.ToCurrency),
				Timestamp:        at,
			},
			model.TradeRecord{
				UserID:           e.userID,
				Pair:             opp.Pair,
				Operation:        model.OperationSell,
				Amount:           opp.Amount,
				PriceAtExecution: opp.SellBid,
				Status:           model.StatusExecuted,
				ConfidenceScore:  opp.Confidence,
				Profit:           profit,
				Reason:           fmt.Sprintf("sell %s on the dearer source", opp.ToCurrency),
				Timestamp:        at,
			},
		)
	})

	switch {
	case err == nil:
		log.Info("Executor: round-trip executed", "buy_ask", opp.BuyAsk, "sell_bid", opp.SellBid, "profit", profit, "confidence", opp.Confidence)
		return true
	case errors.Is(err, errInsufficientFunds):
		log.Info("Executor: insufficient funds, skipping")
		return false
	case errors.Is(err, errUnprofitable):
		log.Warn("Executor: rejecting unprofitable round-trip", "buy_ask", opp.BuyAsk, "sell_bid", opp.SellBid)
		return false
	default:
		log.Error("Executor: execution failed, transaction rolled back", "error", err)
		return false
	}
}

// placeOrders mirrors both legs upstream. Failures are logged; the ledger
// settles regardless.
func (e *Executor) placeOrders(ctx context.Context, opp model.Opportunity, log *slog.Logger) {
	if e.placer == nil {
		return
	}
	for _, side := range []model.Operation{model.OperationBuy, model.OperationSell} {
		receipt, err := e.placer.PlaceOrder(ctx, opp.ToCurrency, opp.Amount, side)
		if err != nil {
			log.Warn("Executor: order placement failed, settling on ledger only", "side", side, "error", err)
			continue
		}
		if receipt != nil {
			log.Debug("Executor: order placed", "side", side, "order_id", receipt.ID, "status", receipt.Status)
		}
	}
}
