// Package store holds the persistence ports the order and portfolio services
// depend on, with a PostgreSQL implementation and an in-memory one.
package store

import (
	"context"
	"errors"
	"time"

	"lv-brokerage/internal/ledger"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a guarded update finds the row in an
	// unexpected state.
	ErrConflict = errors.New("store: conflict")
	// ErrAmbiguous is returned when a lookup that must match one row matches several.
	ErrAmbiguous = errors.New("store: ambiguous")
	ErrReadOnly  = errors.New("store: write in read-only transaction")
	// ErrInvalidStatus is returned when a transition targets an unknown status.
	ErrInvalidStatus = errors.New("store: invalid order status")
)

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
}

type InstrumentLookup interface {
	GetInstrument(ctx context.Context, id int64) (model.Instrument, error)
	// CashInstrument returns the single instrument whose category marks it as
	// the cash equivalent.
	CashInstrument(ctx context.Context) (model.Instrument, error)
	SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, int, error)
}

type QuoteLookup interface {
	LatestQuote(ctx context.Context, instrumentID int64) (model.Quote, error)
	PutQuote(ctx context.Context, q model.Quote) error
}

type OrderStore interface {
	InsertOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (model.Order, error)
	// TransitionStatus moves an order from one status to another and fails
	// with ErrConflict if the order is no longer in from.
	TransitionStatus(ctx context.Context, id int64, from, to types.OrderStatus) (model.Order, error)
	ListOrders(ctx context.Context, userID int64, before int64, limit int) ([]model.Order, error)
}

type LedgerReader interface {
	AvailableCash(ctx context.Context, userID int64) (decimal.Decimal, error)
	Holding(ctx context.Context, userID, instrumentID int64) (int64, error)
	Positions(ctx context.Context, userID int64) ([]ledger.Position, error)
}

// Tx is everything a unit of work can see. All calls share one snapshot.
type Tx interface {
	UserLookup
	InstrumentLookup
	QuoteLookup
	OrderStore
	LedgerReader
	// LockUser serialises units of work for one user until the transaction ends.
	LockUser(ctx context.Context, userID int64) error
}

type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	ReadOnly bool
}

// UnitOfWork runs fn in a transaction. It commits when fn returns nil and
// rolls back otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, opts TxOptions, fn func(Tx) error) error
}

func now() time.Time { return time.Now().UTC() }
