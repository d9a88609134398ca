package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"lv-brokerage/internal/ledger"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/shopspring/decimal"
)

// Memory is an in-process store used for local runs and tests. Transactions
// are fully serialised and work on a copy of the state that replaces the
// live state only on commit.
type Memory struct {
	mu           sync.Mutex
	state        *memState
	cashCategory string
}

type memState struct {
	users       map[int64]model.User
	instruments map[int64]model.Instrument
	quotes      map[int64][]model.Quote
	orders      map[int64]model.Order
	nextOrder   int64
	nextInstr   int64
}

func NewMemory(cashCategory string) *Memory {
	return &Memory{
		cashCategory: cashCategory,
		state: &memState{
			users:       map[int64]model.User{},
			instruments: map[int64]model.Instrument{},
			quotes:      map[int64][]model.Quote{},
			orders:      map[int64]model.Order{},
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[int64]model.User, len(s.users)),
		instruments: make(map[int64]model.Instrument, len(s.instruments)),
		quotes:      make(map[int64][]model.Quote, len(s.quotes)),
		orders:      make(map[int64]model.Order, len(s.orders)),
		nextOrder:   s.nextOrder,
		nextInstr:   s.nextInstr,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.instruments {
		c.instruments[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = append([]model.Quote(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

func (m *Memory) InTx(ctx context.Context, opts TxOptions, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{state: work, readOnly: opts.ReadOnly, cashCategory: m.cashCategory}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// AddUser seeds a user outside any transaction.
func (m *Memory) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// AddInstrument seeds an instrument and assigns it an id when it has none.
func (m *Memory) AddInstrument(i model.Instrument) model.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == 0 {
		m.state.nextInstr++
		i.ID = m.state.nextInstr
	} else if i.ID > m.state.nextInstr {
		m.state.nextInstr = i.ID
	}
	m.state.instruments[i.ID] = i
	return i
}

func (m *Memory) AddQuote(q model.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	putQuote(m.state, q)
}

// AddOrder appends an order as if it had been executed earlier.
func (m *Memory) AddOrder(o model.Order) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return insertOrder(m.state, o)
}

func putQuote(s *memState, q model.Quote) {
	if q.AsOf.IsZero() {
		q.AsOf = now()
	}
	list := s.quotes[q.InstrumentID]
	for i := range list {
		if list[i].AsOf.Equal(q.AsOf) {
			list[i] = q
			return
		}
	}
	s.quotes[q.InstrumentID] = append(list, q)
}

func insertOrder(s *memState, o model.Order) model.Order {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now()
	}
	s.nextOrder++
	o.ID = s.nextOrder
	s.orders[o.ID] = o
	return o
}

type memTx struct {
	state        *memState
	readOnly     bool
	cashCategory string
}

func (t *memTx) LockUser(ctx context.Context, userID int64) error { return nil }

func (t *memTx) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return u, ErrNotFound
	}
	return u, nil
}

func (t *memTx) GetInstrument(ctx context.Context, id int64) (model.Instrument, error) {
	i, ok := t.state.instruments[id]
	if !ok {
		return i, ErrNotFound
	}
	return i, nil
}

func (t *memTx) CashInstrument(ctx context.Context) (model.Instrument, error) {
	var found []model.Instrument
	for _, i := range t.state.instruments {
		if i.Category == t.cashCategory {
			found = append(found, i)
		}
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

func (t *memTx) SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, int, error) {
	q := strings.ToLower(query)
	var matched []model.Instrument
	for _, i := range t.state.instruments {
		if q == "" || strings.Contains(strings.ToLower(i.Ticker), q) || strings.Contains(strings.ToLower(i.Name), q) {
			matched = append(matched, i)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].ID < matched[b].ID })
	total := len(matched)
	if offset >= total {
		return []model.Instrument{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (t *memTx) LatestQuote(ctx context.Context, instrumentID int64) (model.Quote, error) {
	list := t.state.quotes[instrumentID]
	if len(list) == 0 {
		return model.Quote{}, ErrNotFound
	}
	latest := list[0]
	for _, q := range list[1:] {
		if q.AsOf.After(latest.AsOf) {
			latest = q
		}
	}
	return latest, nil
}

func (t *memTx) PutQuote(ctx context.Context, q model.Quote) error {
	if t.readOnly {
		return ErrReadOnly
	}
	putQuote(t.state, q)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if t.readOnly {
		return o, ErrReadOnly
	}
	return insertOrder(t.state, o), nil
}

func (t *memTx) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return o, ErrNotFound
	}
	return o, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (model.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) TransitionStatus(ctx context.Context, id int64, from, to types.OrderStatus) (model.Order, error) {
	if t.readOnly {
		return model.Order{}, ErrReadOnly
	}
	if !to.Valid() {
		return model.Order{}, ErrInvalidStatus
	}
	o, ok := t.state.orders[id]
	if !ok {
		return o, ErrNotFound
	}
	if o.Status != from {
		return o, ErrConflict
	}
	o.Status = to
	t.state.orders[id] = o
	return o, nil
}

func (t *memTx) ListOrders(ctx context.Context, userID int64, before int64, limit int) ([]model.Order, error) {
	out := t.userOrders(userID)
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if before > 0 {
		i := sort.Search(len(out), func(i int) bool { return out[i].ID < before })
		out = out[i:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) userOrders(userID int64) []model.Order {
	var out []model.Order
	for _, o := range t.state.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

func (t *memTx) AvailableCash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return ledger.AvailableCash(t.userOrders(userID)), nil
}

func (t *memTx) Holding(ctx context.Context, userID, instrumentID int64) (int64, error) {
	return ledger.Holding(t.userOrders(userID), instrumentID), nil
}

func (t *memTx) Positions(ctx context.Context, userID int64) ([]ledger.Position, error) {
	return ledger.Positions(t.userOrders(userID)), nil
}

// Ping always succeeds; it lets the memory store stand in for the pool in
// health checks.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
