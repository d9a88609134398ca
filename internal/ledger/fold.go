package ledger

import (
	"sort"

	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/shopspring/decimal"
)

// Position is the net exposure of one user to one instrument.
type Position struct {
	InstrumentID int64
	NetQuantity  int64
	NetInvested  decimal.Decimal
}

// AvailableCash folds one user's order history into a cash figure. Only
// FILLED orders count. It is the in-process twin of Service.AvailableCash.
func AvailableCash(orders []model.Order) decimal.Decimal {
	cash := decimal.Zero
	for _, o := range orders {
		if o.Status != types.OrderStatusFilled {
			continue
		}
		switch o.Side {
		case types.OrderSideCashIn, types.OrderSideSell:
			cash = cash.Add(o.Value())
		case types.OrderSideCashOut, types.OrderSideBuy:
			cash = cash.Sub(o.Value())
		}
	}
	return cash
}

// Holding folds one user's order history into a share count for instrumentID.
func Holding(orders []model.Order, instrumentID int64) int64 {
	var qty int64
	for _, o := range orders {
		if o.Status != types.OrderStatusFilled || o.InstrumentID != instrumentID {
			continue
		}
		switch o.Side {
		case types.OrderSideBuy:
			qty += o.Size
		case types.OrderSideSell:
			qty -= o.Size
		}
	}
	return qty
}

// Positions groups FILLED BUY/SELL orders by instrument and drops groups that
// are flat or short.
func Positions(orders []model.Order) []Position {
	byInstrument := make(map[int64]*Position)
	for _, o := range orders {
		if o.Status != types.OrderStatusFilled {
			continue
		}
		var sign int64
		switch o.Side {
		case types.OrderSideBuy:
			sign = 1
		case types.OrderSideSell:
			sign = -1
		default:
			continue
		}
		p, ok := byInstrument[o.InstrumentID]
		if !ok {
			p = &Position{InstrumentID: o.InstrumentID, NetInvested: decimal.Zero}
			byInstrument[o.InstrumentID] = p
		}
		p.NetQuantity += sign * o.Size
		p.NetInvested = p.NetInvested.Add(o.Value().Mul(decimal.NewFromInt(sign)))
	}
	out := make([]Position, 0, len(byInstrument))
	for _, p := range byInstrument {
		if p.NetQuantity > 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}
