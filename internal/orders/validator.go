package orders

import (
	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/shopspring/decimal"
)

// PlaceOrderRequest is the loosely-typed shape an order arrives in. Absent
// fields are nil.
type PlaceOrderRequest struct {
	UserID       int64
	Side         types.OrderSide
	InstrumentID *int64
	Kind         *types.OrderKind
	Size         *int64
	Amount       *decimal.Decimal
	Price        *decimal.Decimal
}

// Quantity carries either an explicit share count or a total amount to spend.
type Quantity struct {
	Size   int64
	Amount *decimal.Decimal
}

// Command is either a CashTransferCommand or a MarketOrderCommand.
type Command interface {
	command()
	User() int64
}

type CashTransferCommand struct {
	UserID   int64
	Side     types.OrderSide
	Quantity Quantity
}

type MarketOrderCommand struct {
	UserID       int64
	InstrumentID int64
	Side         types.OrderSide
	Kind         types.OrderKind
	Quantity     Quantity

	// Price is set only for LIMIT orders.
	Price *decimal.Decimal
}

func (CashTransferCommand) command() {}
func (MarketOrderCommand) command()  {}

func (c CashTransferCommand) User() int64 { return c.UserID }
func (c MarketOrderCommand) User() int64  { return c.UserID }

// Validate classifies a request into a typed command. It does no I/O and
// reports the first rule the request breaks.
func Validate(req PlaceOrderRequest) (Command, error) {
	if req.UserID <= 0 {
		return nil, apperr.Invalid("userId must be a positive integer")
	}
	if !req.Side.Valid() {
		return nil, apperr.Invalid("side must be one of BUY, SELL, CASH_IN, CASH_OUT")
	}
	if (req.Size == nil) == (req.Amount == nil) {
		return nil, apperr.Invalid("exactly one of size or amount required")
	}
	qty, err := validateQuantity(req)
	if err != nil {
		return nil, err
	}

	if req.Side.IsCashTransfer() {
		switch {
		case req.InstrumentID != nil:
			return nil, apperr.Invalid("instrumentId must not be provided for cash transfers")
		case req.Kind != nil:
			return nil, apperr.Invalid("orderKind must not be provided for cash transfers")
		case req.Price != nil:
			return nil, apperr.Invalid("price must not be provided for cash transfers")
		}
		return CashTransferCommand{UserID: req.UserID, Side: req.Side, Quantity: qty}, nil
	}

	if req.InstrumentID == nil {
		return nil, apperr.Invalid("instrumentId is required for BUY/SELL orders")
	}
	if *req.InstrumentID <= 0 {
		return nil, apperr.Invalid("instrumentId must be a positive integer")
	}
	if req.Kind == nil {
		return nil, apperr.Invalid("orderKind is required for BUY/SELL orders")
	}
	if !req.Kind.Valid() {
		return nil, apperr.Invalid("orderKind must be MARKET or LIMIT")
	}
	cmd := MarketOrderCommand{
		UserID:       req.UserID,
		InstrumentID: *req.InstrumentID,
		Side:         req.Side,
		Kind:         *req.Kind,
		Quantity:     qty,
	}
	switch cmd.Kind {
	case types.OrderKindMarket:
		if req.Price != nil {
			return nil, apperr.Invalid("price must not be provided for MARKET orders")
		}
	case types.OrderKindLimit:
		if req.Price == nil {
			return nil, apperr.Invalid("price is required for LIMIT orders")
		}
		if !req.Price.IsPositive() {
			return nil, apperr.Invalid("price must be positive")
		}
		if !req.Price.LessThan(model.MaxPrice) {
			return nil, apperr.Invalid("price must be below %s", model.MaxPrice)
		}
		if !hasAtMostCents(*req.Price) {
			return nil, apperr.Invalid("price must have at most 2 decimal places")
		}
		p := *req.Price
		cmd.Price = &p
	}
	return cmd, nil
}

func validateQuantity(req PlaceOrderRequest) (Quantity, error) {
	if req.Size != nil {
		if *req.Size <= 0 {
			return Quantity{}, apperr.Invalid("size must be a positive integer")
		}
		if *req.Size > model.MaxSize {
			return Quantity{}, apperr.Invalid("size must not exceed %d", model.MaxSize)
		}
		return Quantity{Size: *req.Size}, nil
	}
	if !req.Amount.IsPositive() {
		return Quantity{}, apperr.Invalid("amount must be positive")
	}
	if !hasAtMostCents(*req.Amount) {
		return Quantity{}, apperr.Invalid("amount must have at most 2 decimal places")
	}
	a := *req.Amount
	return Quantity{Amount: &a}, nil
}

func hasAtMostCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
