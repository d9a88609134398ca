package orders

import (
	"context"
	"errors"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/store"
	"lv-brokerage/internal/types"

	"github.com/shopspring/decimal"
)

var cashUnitPrice = decimal.NewFromInt(1)

// resolvePrice returns the execution price of a market-order command: the
// limit price as given, or the latest close for MARKET orders.
func resolvePrice(ctx context.Context, quotes store.QuoteLookup, cmd MarketOrderCommand) (decimal.Decimal, error) {
	if cmd.Kind == types.OrderKindLimit {
		return *cmd.Price, nil
	}
	q, err := quotes.LatestQuote(ctx, cmd.InstrumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, apperr.Inconsistent(err, "no market data available for instrument %d", cmd.InstrumentID)
		}
		return decimal.Zero, err
	}
	price := q.Close.Round(2)
	if !price.IsPositive() {
		return decimal.Zero, apperr.Inconsistent(nil, "latest quote for instrument %d has no positive close", cmd.InstrumentID)
	}
	return price, nil
}

// resolveSize turns a quantity into a whole number of units at price.
func resolveSize(q Quantity, price decimal.Decimal) (int64, error) {
	if q.Amount == nil {
		return q.Size, nil
	}
	// QuoRem at precision 0 truncates exactly; both operands are positive so
	// this is the floor.
	size, _ := q.Amount.QuoRem(price, 0)
	if !size.IsPositive() {
		return 0, apperr.Invalid("amount insufficient for one unit at price %s", price.StringFixed(2))
	}
	if size.GreaterThan(decimal.NewFromInt(model.MaxSize)) {
		return 0, apperr.Invalid("amount too large")
	}
	return size.IntPart(), nil
}
