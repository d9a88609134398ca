package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool. Callers pass the
// transaction the decision is taken in so every read sees one snapshot.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service computes balances by aggregating FILLED orders. Nothing is cached;
// the orders table is the only source of truth.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

const availableCashSQL = `
	select coalesce(sum(
		case
			when side in ('CASH_IN', 'SELL') then size * price
			when side in ('CASH_OUT', 'BUY') then -size * price
			else 0
		end
	), 0)
	from orders
	where user_id = $1 and status = 'FILLED'`

const holdingSQL = `
	select coalesce(sum(
		case
			when side = 'BUY' then size
			when side = 'SELL' then -size
			else 0
		end
	), 0)::bigint
	from orders
	where user_id = $1 and instrument_id = $2 and status = 'FILLED'`

const positionsSQL = `
	select
		instrument_id,
		sum(case when side = 'BUY' then size else -size end)::bigint as net_qty,
		sum(case when side = 'BUY' then size * price else -size * price end) as net_invested
	from orders
	where user_id = $1 and status = 'FILLED' and side in ('BUY', 'SELL')
	group by instrument_id
	having sum(case when side = 'BUY' then size else -size end) > 0
	order by instrument_id`

func (s *Service) AvailableCash(ctx context.Context, q Querier, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRow(ctx, availableCashSQL, userID).Scan(&sum)
	return sum, err
}

func (s *Service) Holding(ctx context.Context, q Querier, userID, instrumentID int64) (int64, error) {
	var qty int64
	err := q.QueryRow(ctx, holdingSQL, userID, instrumentID).Scan(&qty)
	return qty, err
}

// Positions returns the open positions of a user, one per instrument with a
// positive net quantity, ordered by instrument id.
func (s *Service) Positions(ctx context.Context, q Querier, userID int64) ([]Position, error) {
	rows, err := q.Query(ctx, positionsSQL, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.InstrumentID, &p.NetQuantity, &p.NetInvested); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
