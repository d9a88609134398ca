package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// Service exposes the instrument catalog and records quotes coming from
// market data ingestion.
type Service struct {
	uow store.UnitOfWork
	bus *Bus
}

func NewService(uow store.UnitOfWork, bus *Bus) *Service {
	return &Service{uow: uow, bus: bus}
}

type SearchResult struct {
	Data   []model.Instrument
	Total  int
	Limit  int
	Offset int
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if limit < 1 || limit > MaxSearchLimit {
		return SearchResult{}, apperr.Invalid("limit must be between 1 and %d", MaxSearchLimit)
	}
	if offset < 0 {
		return SearchResult{}, apperr.Invalid("offset must not be negative")
	}
	res := SearchResult{Limit: limit, Offset: offset}
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted, ReadOnly: true}, func(tx store.Tx) error {
		var err error
		res.Data, res.Total, err = tx.SearchInstruments(ctx, query, limit, offset)
		return err
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search instruments: %w", err)
	}
	return res, nil
}

type RecordQuoteRequest struct {
	InstrumentID  int64
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	PreviousClose decimal.Decimal
	AsOf          time.Time
}

// RecordQuote stores a quote at 2-digit precision and broadcasts it. Bounds
// are checked on the rounded values, which are the ones stored.
func (s *Service) RecordQuote(ctx context.Context, req RecordQuoteRequest) (model.Quote, error) {
	if req.InstrumentID <= 0 {
		return model.Quote{}, apperr.Invalid("instrumentId must be a positive integer")
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}
	q := model.Quote{
		InstrumentID:  req.InstrumentID,
		Open:          req.Open.Round(2),
		High:          req.High.Round(2),
		Low:           req.Low.Round(2),
		Close:         req.Close.Round(2),
		PreviousClose: req.PreviousClose.Round(2),
		AsOf:          req.AsOf.UTC(),
	}
	if !q.Close.IsPositive() {
		return model.Quote{}, apperr.Invalid("close must be at least 0.01")
	}
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"open", q.Open}, {"high", q.High}, {"low", q.Low}, {"close", q.Close}, {"previousClose", q.PreviousClose},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return model.Quote{}, apperr.Invalid("%s must not be negative", f.name)
		}
		if !f.value.LessThan(model.MaxPrice) {
			return model.Quote{}, apperr.Invalid("%s must be below %s", f.name, model.MaxPrice)
		}
	}
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx store.Tx) error {
		if _, err := tx.GetInstrument(ctx, q.InstrumentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("instrument %d not found", q.InstrumentID)
			}
			return err
		}
		return tx.PutQuote(ctx, q)
	})
	if err != nil {
		return model.Quote{}, fmt.Errorf("record quote: %w", err)
	}
	s.bus.Publish(Event{Type: EventQuote, Data: q})
	return q, nil
}
