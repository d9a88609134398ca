// Package portfolio values a user's holdings against the latest market data.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/ledger"
	"lv-brokerage/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

type Position struct {
	InstrumentID     int64
	Ticker           string
	Name             string
	Quantity         int64
	AverageCost      decimal.Decimal
	LastPrice        decimal.Decimal
	TotalValue       decimal.Decimal
	ReturnPercentage decimal.Decimal
}

type Portfolio struct {
	UserID            int64
	TotalAccountValue decimal.Decimal
	AvailableCash     decimal.Decimal
	Positions         []Position
}

type Service struct {
	uow store.UnitOfWork
	log *zap.Logger
}

func NewService(uow store.UnitOfWork, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{uow: uow, log: log}
}

// Get reads cash and positions from one repeatable-read snapshot so both
// reflect the same point in time. Positions without a quote are left out.
func (s *Service) Get(ctx context.Context, userID int64) (Portfolio, error) {
	if userID <= 0 {
		return Portfolio{}, apperr.Invalid("userId must be a positive integer")
	}
	out := Portfolio{UserID: userID, Positions: []Position{}}
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.RepeatableRead, ReadOnly: true}, func(tx store.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("user %d not found", userID)
			}
			return fmt.Errorf("load user: %w", err)
		}
		cash, err := tx.AvailableCash(ctx, userID)
		if err != nil {
			return fmt.Errorf("available cash: %w", err)
		}
		out.AvailableCash = cash
		held, err := tx.Positions(ctx, userID)
		if err != nil {
			return fmt.Errorf("positions: %w", err)
		}
		for _, p := range held {
			pos, ok, err := s.value(ctx, tx, p)
			if err != nil {
				return err
			}
			if ok {
				out.Positions = append(out.Positions, pos)
			}
		}
		return nil
	})
	if err != nil {
		return Portfolio{}, err
	}

	total := out.AvailableCash
	for _, p := range out.Positions {
		total = total.Add(p.TotalValue)
	}
	out.TotalAccountValue = total.Round(2)
	out.AvailableCash = out.AvailableCash.Round(2)
	sort.SliceStable(out.Positions, func(i, j int) bool { return out.Positions[i].Ticker < out.Positions[j].Ticker })
	return out, nil
}

func (s *Service) value(ctx context.Context, tx store.Tx, p ledger.Position) (Position, bool, error) {
	instr, err := tx.GetInstrument(ctx, p.InstrumentID)
	if err != nil {
		return Position{}, false, fmt.Errorf("load instrument %d: %w", p.InstrumentID, err)
	}
	q, err := tx.LatestQuote(ctx, p.InstrumentID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("position without market data dropped",
			zap.Int64("instrument_id", p.InstrumentID), zap.String("ticker", instr.Ticker))
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("latest quote %d: %w", p.InstrumentID, err)
	}
	return valuate(p, instr.Ticker, instr.Name, q.Close), true, nil
}

// valuate computes the monetary figures of one position. Intermediate values
// keep full precision; only the outputs are rounded.
func valuate(p ledger.Position, ticker, name string, lastPrice decimal.Decimal) Position {
	qty := decimal.NewFromInt(p.NetQuantity)
	avg := p.NetInvested.Div(qty)
	ret := decimal.Zero
	if avg.IsPositive() {
		ret = lastPrice.Sub(avg).Div(avg).Mul(hundred)
	}
	return Position{
		InstrumentID:     p.InstrumentID,
		Ticker:           ticker,
		Name:             name,
		Quantity:         p.NetQuantity,
		AverageCost:      avg.Round(2),
		LastPrice:        lastPrice.Round(2),
		TotalValue:       qty.Mul(lastPrice).Round(2),
		ReturnPercentage: ret.Round(2),
	}
}
