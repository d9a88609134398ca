package types

type OrderSide string

type OrderKind string

type OrderStatus string

const (
	OrderSideBuy     OrderSide = "BUY"
	OrderSideSell    OrderSide = "SELL"
	OrderSideCashIn  OrderSide = "CASH_IN"
	OrderSideCashOut OrderSide = "CASH_OUT"
)

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderSide) Valid() bool {
	switch s {
	case OrderSideBuy, OrderSideSell, OrderSideCashIn, OrderSideCashOut:
		return true
	}
	return false
}

// IsCashTransfer reports whether the side moves cash in or out of the account
// rather than trading an instrument.
func (s OrderSide) IsCashTransfer() bool {
	return s == OrderSideCashIn || s == OrderSideCashOut
}

func (k OrderKind) Valid() bool {
	return k == OrderKindMarket || k == OrderKindLimit
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusCancelled
}
