package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Instrument struct {
	ID       int64  `json:"id"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Quote is one market data point. Only Close and AsOf drive order pricing.
type Quote struct {
	InstrumentID  int64           `json:"instrumentId"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	AsOf          time.Time       `json:"asOf"`
}
