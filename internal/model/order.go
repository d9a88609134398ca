package model

import (
	"time"

	"lv-brokerage/internal/types"

	"github.com/shopspring/decimal"
)

// MaxPrice is the exclusive upper bound of any stored price; prices are
// numeric(12,2) columns.
var MaxPrice = decimal.New(1, 10)

// MaxSize keeps sizes exact when rendered as JSON numbers and leaves room for
// summing them in the ledger.
const MaxSize = 1<<53 - 1

// Order is one append-only instruction. Kind is empty for cash transfers.
type Order struct {
	ID           int64             `json:"id"`
	UserID       int64             `json:"userId"`
	InstrumentID int64             `json:"instrumentId"`
	Side         types.OrderSide   `json:"side"`
	Size         int64             `json:"size"`
	Price        decimal.Decimal   `json:"price"`
	Kind         types.OrderKind   `json:"orderKind,omitempty"`
	Status       types.OrderStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Value is size × price.
func (o Order) Value() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Size))
}

type User struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	AccountNumber string `json:"accountNumber"`
}
