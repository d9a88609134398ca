package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"lv-brokerage/internal/db"
	"lv-brokerage/internal/ledger"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// newTestPostgres connects to LV_TEST_DATABASE_DSN. The database is migrated
// and every row the test inserts is scoped to a fresh user.
func newTestPostgres(t *testing.T) (*Postgres, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("LV_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("LV_TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgres(pool, ledger.NewService(), "CURRENCY"), pool
}

func seedPostgres(t *testing.T, pool *pgxpool.Pool) (userID, cashID, stockID int64) {
	t.Helper()
	ctx := context.Background()
	tag := fmt.Sprintf("%d", time.Now().UnixNano())
	if err := pool.QueryRow(ctx, "insert into users (email, account_number) values ($1, $2) returning id",
		"pg-"+tag+"@example.com", "PG"+tag).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := pool.QueryRow(ctx, "select id from instruments where category = 'CURRENCY' order by id limit 1").Scan(&cashID); err != nil {
		if err := pool.QueryRow(ctx, "insert into instruments (ticker, name, category) values ('ARS', 'Pesos', 'CURRENCY') returning id").Scan(&cashID); err != nil {
			t.Fatalf("insert cash instrument: %v", err)
		}
	}
	if err := pool.QueryRow(ctx, "insert into instruments (ticker, name, category) values ($1, 'Test stock', 'ACCIONES') returning id",
		"T"+tag).Scan(&stockID); err != nil {
		t.Fatalf("insert stock: %v", err)
	}
	return userID, cashID, stockID
}

func TestPostgresLedger(t *testing.T) {
	p, pool := newTestPostgres(t)
	userID, cashID, stockID := seedPostgres(t, pool)
	ctx := context.Background()

	orders := []model.Order{
		{UserID: userID, InstrumentID: cashID, Side: types.OrderSideCashIn, Size: 10000, Price: decimal.NewFromInt(1), Status: types.OrderStatusFilled},
		{UserID: userID, InstrumentID: stockID, Side: types.OrderSideBuy, Size: 10, Price: decimal.RequireFromString("152.50"), Kind: types.OrderKindMarket, Status: types.OrderStatusFilled},
		{UserID: userID, InstrumentID: stockID, Side: types.OrderSideSell, Size: 4, Price: decimal.RequireFromString("160.00"), Kind: types.OrderKindMarket, Status: types.OrderStatusFilled},
		{UserID: userID, InstrumentID: stockID, Side: types.OrderSideBuy, Size: 100, Price: decimal.RequireFromString("150.00"), Kind: types.OrderKindLimit, Status: types.OrderStatusNew},
		{UserID: userID, InstrumentID: stockID, Side: types.OrderSideBuy, Size: 1000, Price: decimal.RequireFromString("152.50"), Kind: types.OrderKindMarket, Status: types.OrderStatusRejected},
	}
	err := p.InTx(ctx, TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx Tx) error {
		for _, o := range orders {
			if _, err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert orders: %v", err)
	}

	err = p.InTx(ctx, TxOptions{IsoLevel: pgx.RepeatableRead, ReadOnly: true}, func(tx Tx) error {
		cash, err := tx.AvailableCash(ctx, userID)
		if err != nil {
			return err
		}
		if want := decimal.RequireFromString("9115"); !cash.Equal(want) {
			t.Errorf("cash = %s, want %s", cash, want)
		}
		held, err := tx.Holding(ctx, userID, stockID)
		if err != nil {
			return err
		}
		if held != 6 {
			t.Errorf("holding = %d, want 6", held)
		}
		positions, err := tx.Positions(ctx, userID)
		if err != nil {
			return err
		}
		if len(positions) != 1 || positions[0].InstrumentID != stockID || positions[0].NetQuantity != 6 ||
			!positions[0].NetInvested.Equal(decimal.RequireFromString("885")) {
			t.Errorf("positions = %+v", positions)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
}

// Two transactions that each spend the whole balance must not both see it
// when they hold the user lock.
func TestPostgresLockUserSerializes(t *testing.T) {
	p, pool := newTestPostgres(t)
	userID, cashID, _ := seedPostgres(t, pool)
	ctx := context.Background()

	err := p.InTx(ctx, TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx Tx) error {
		_, err := tx.InsertOrder(ctx, model.Order{UserID: userID, InstrumentID: cashID, Side: types.OrderSideCashIn, Size: 500, Price: decimal.NewFromInt(1), Status: types.OrderStatusFilled})
		return err
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var wg sync.WaitGroup
	statuses := make([]types.OrderStatus, 4)
	errs := make([]error, len(statuses))
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.InTx(ctx, TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx Tx) error {
				if err := tx.LockUser(ctx, userID); err != nil {
					return err
				}
				cash, err := tx.AvailableCash(ctx, userID)
				if err != nil {
					return err
				}
				o := model.Order{UserID: userID, InstrumentID: cashID, Side: types.OrderSideCashOut, Size: 500, Price: decimal.NewFromInt(1), Status: types.OrderStatusFilled}
				if cash.LessThan(decimal.NewFromInt(o.Size)) {
					o.Status = types.OrderStatusRejected
				}
				saved, err := tx.InsertOrder(ctx, o)
				statuses[i] = saved.Status
				return err
			})
		}(i)
	}
	wg.Wait()

	filled := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("withdrawal %d: %v", i, err)
		}
		if statuses[i] == types.OrderStatusFilled {
			filled++
		}
	}
	if filled != 1 {
		t.Errorf("filled withdrawals = %d, want 1 (statuses %v)", filled, statuses)
	}
}
