package store

import (
	"context"
	"errors"
	"fmt"

	"lv-brokerage/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	pool         *pgxpool.Pool
	ledger       *ledger.Service
	cashCategory string
}

func NewPostgres(pool *pgxpool.Pool, ledgerSvc *ledger.Service, cashCategory string) *Postgres {
	return &Postgres{pool: pool, ledger: ledgerSvc, cashCategory: cashCategory}
}

func (p *Postgres) InTx(ctx context.Context, opts TxOptions, fn func(Tx) error) error {
	txOpts := pgx.TxOptions{IsoLevel: opts.IsoLevel}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}
	tx, err := p.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(&pgTx{tx: tx, ledger: p.ledger, cashCategory: p.cashCategory}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx           pgx.Tx
	ledger       *ledger.Service
	cashCategory string
}

func (t *pgTx) LockUser(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, "select pg_advisory_xact_lock($1::bigint)", userID)
	return err
}

func (t *pgTx) AvailableCash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return t.ledger.AvailableCash(ctx, t.tx, userID)
}

func (t *pgTx) Holding(ctx context.Context, userID, instrumentID int64) (int64, error) {
	return t.ledger.Holding(ctx, t.tx, userID, instrumentID)
}

func (t *pgTx) Positions(ctx context.Context, userID int64) ([]ledger.Position, error) {
	return t.ledger.Positions(ctx, t.tx, userID)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
