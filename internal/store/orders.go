package store

import (
	"context"
	"errors"

	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/jackc/pgx/v5"
)

const orderColumns = "id, user_id, instrument_id, side, size, price, order_kind, status, created_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, status string
	var kind *string
	if err := row.Scan(&o.ID, &o.UserID, &o.InstrumentID, &side, &o.Size, &o.Price, &kind, &status, &o.CreatedAt); err != nil {
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Status = types.OrderStatus(status)
	if kind != nil {
		o.Kind = types.OrderKind(*kind)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now()
	}
	var kind *string
	if o.Kind != "" {
		k := string(o.Kind)
		kind = &k
	}
	err := t.tx.QueryRow(ctx, "insert into orders (user_id, instrument_id, side, size, price, order_kind, status, created_at) values ($1,$2,$3,$4,$5,$6,$7,$8) returning id",
		o.UserID, o.InstrumentID, string(o.Side), o.Size, o.Price, kind, string(o.Status), o.CreatedAt).Scan(&o.ID)
	return o, err
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
	return o, notFound(err)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
	return o, notFound(err)
}

func (t *pgTx) TransitionStatus(ctx context.Context, id int64, from, to types.OrderStatus) (model.Order, error) {
	if !to.Valid() {
		return model.Order{}, ErrInvalidStatus
	}
	o, err := scanOrder(t.tx.QueryRow(ctx, "update orders set status = $3 where id = $1 and status = $2 returning "+orderColumns, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := t.tx.QueryRow(ctx, "select exists(select 1 from orders where id = $1)", id).Scan(&exists); err != nil {
			return o, err
		}
		if !exists {
			return o, ErrNotFound
		}
		return o, ErrConflict
	}
	return o, err
}

// ListOrders returns a user's orders newest first. before = 0 starts from the
// most recent order; otherwise only ids below before are returned.
func (t *pgTx) ListOrders(ctx context.Context, userID int64, before int64, limit int) ([]model.Order, error) {
	var rows pgx.Rows
	var err error
	if before > 0 {
		rows, err = t.tx.Query(ctx, "select "+orderColumns+" from orders where user_id = $1 and id < $2 order by id desc limit $3", userID, before, limit)
	} else {
		rows, err = t.tx.Query(ctx, "select "+orderColumns+" from orders where user_id = $1 order by id desc limit $2", userID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
