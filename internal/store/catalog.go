package store

import (
	"context"
	"strings"

	"lv-brokerage/internal/model"
)

func (t *pgTx) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx, "select id, email, account_number from users where id = $1", id).Scan(&u.ID, &u.Email, &u.AccountNumber)
	return u, notFound(err)
}

func (t *pgTx) GetInstrument(ctx context.Context, id int64) (model.Instrument, error) {
	var i model.Instrument
	err := t.tx.QueryRow(ctx, "select id, ticker, name, category from instruments where id = $1", id).Scan(&i.ID, &i.Ticker, &i.Name, &i.Category)
	return i, notFound(err)
}

func (t *pgTx) CashInstrument(ctx context.Context) (model.Instrument, error) {
	rows, err := t.tx.Query(ctx, "select id, ticker, name, category from instruments where category = $1 order by id limit 2", t.cashCategory)
	if err != nil {
		return model.Instrument{}, err
	}
	defer rows.Close()
	var found []model.Instrument
	for rows.Next() {
		var i model.Instrument
		if err := rows.Scan(&i.ID, &i.Ticker, &i.Name, &i.Category); err != nil {
			return model.Instrument{}, err
		}
		found = append(found, i)
	}
	if err := rows.Err(); err != nil {
		return model.Instrument{}, err
	}
	switch len(found) {
	case 0:
		return model.Instrument{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return model.Instrument{}, ErrAmbiguous
	}
}

// likePattern escapes LIKE metacharacters in a user query.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func (t *pgTx) SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, int, error) {
	pattern := likePattern(query)
	var total int
	err := t.tx.QueryRow(ctx, "select count(*) from instruments where $1 = '' or ticker ilike $2 or name ilike $2", query, pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := t.tx.Query(ctx, "select id, ticker, name, category from instruments where $1 = '' or ticker ilike $2 or name ilike $2 order by id limit $3 offset $4", query, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Instrument, 0, limit)
	for rows.Next() {
		var i model.Instrument
		if err := rows.Scan(&i.ID, &i.Ticker, &i.Name, &i.Category); err != nil {
			return nil, 0, err
		}
		out = append(out, i)
	}
	return out, total, rows.Err()
}

func (t *pgTx) LatestQuote(ctx context.Context, instrumentID int64) (model.Quote, error) {
	var q model.Quote
	err := t.tx.QueryRow(ctx, `
		select instrument_id, open, high, low, close, previous_close, as_of
		from quotes
		where instrument_id = $1
		order by as_of desc
		limit 1
	`, instrumentID).Scan(&q.InstrumentID, &q.Open, &q.High, &q.Low, &q.Close, &q.PreviousClose, &q.AsOf)
	return q, notFound(err)
}

func (t *pgTx) PutQuote(ctx context.Context, q model.Quote) error {
	if q.AsOf.IsZero() {
		q.AsOf = now()
	}
	_, err := t.tx.Exec(ctx, `
		insert into quotes (instrument_id, open, high, low, close, previous_close, as_of)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (instrument_id, as_of) do update set
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			previous_close = excluded.previous_close
	`, q.InstrumentID, q.Open, q.High, q.Low, q.Close, q.PreviousClose, q.AsOf)
	return err
}
