package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/marketdata"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/store"
	"lv-brokerage/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type Service struct {
	uow              store.UnitOfWork
	bus              *marketdata.Bus
	log              *zap.Logger
	serializePerUser bool
	now              func() time.Time
}

// NewService wires the order executor. With serializePerUser set, order
// creation holds a per-user lock for the whole unit of work so concurrent
// orders of one user see each other's effect on the ledger.
func NewService(uow store.UnitOfWork, bus *marketdata.Bus, log *zap.Logger, serializePerUser bool) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		uow:              uow,
		bus:              bus,
		log:              log,
		serializePerUser: serializePerUser,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates the request and decides and persists the order in one
// transaction. An order rejected for insufficient cash or holdings is a
// successful result with status REJECTED.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	cmd, err := Validate(req)
	if err != nil {
		return model.Order{}, err
	}
	var order model.Order
	err = s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx store.Tx) error {
		if s.serializePerUser {
			if err := tx.LockUser(ctx, cmd.User()); err != nil {
				return fmt.Errorf("lock user: %w", err)
			}
		}
		if _, err := loadUser(ctx, tx, cmd.User()); err != nil {
			return err
		}
		var err error
		switch c := cmd.(type) {
		case CashTransferCommand:
			order, err = s.executeCashTransfer(ctx, tx, c)
		case MarketOrderCommand:
			order, err = s.executeMarketOrder(ctx, tx, c)
		default:
			err = fmt.Errorf("unknown command %T", cmd)
		}
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int64("instrument_id", order.InstrumentID),
		zap.String("side", string(order.Side)),
		zap.Int64("size", order.Size),
		zap.String("price", order.Price.StringFixed(2)),
		zap.String("status", string(order.Status)),
	)
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrderCreated, UserID: order.UserID, Data: order})
	return order, nil
}

func (s *Service) executeMarketOrder(ctx context.Context, tx store.Tx, cmd MarketOrderCommand) (model.Order, error) {
	if _, err := tx.GetInstrument(ctx, cmd.InstrumentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Order{}, apperr.NotFound("instrument %d not found", cmd.InstrumentID)
		}
		return model.Order{}, fmt.Errorf("load instrument: %w", err)
	}
	price, err := resolvePrice(ctx, tx, cmd)
	if err != nil {
		return model.Order{}, err
	}
	size, err := resolveSize(cmd.Quantity, price)
	if err != nil {
		return model.Order{}, err
	}
	order := model.Order{
		UserID:       cmd.UserID,
		InstrumentID: cmd.InstrumentID,
		Side:         cmd.Side,
		Size:         size,
		Price:        price,
		Kind:         cmd.Kind,
		CreatedAt:    s.now(),
	}

	switch cmd.Side {
	case types.OrderSideBuy:
		cash, err := tx.AvailableCash(ctx, cmd.UserID)
		if err != nil {
			return model.Order{}, fmt.Errorf("available cash: %w", err)
		}
		if order.Value().GreaterThan(cash) {
			s.log.Info("buy rejected: insufficient cash",
				zap.Int64("user_id", cmd.UserID),
				zap.String("required", order.Value().StringFixed(2)),
				zap.String("available", cash.StringFixed(2)))
			order.Status = types.OrderStatusRejected
		}
	case types.OrderSideSell:
		held, err := tx.Holding(ctx, cmd.UserID, cmd.InstrumentID)
		if err != nil {
			return model.Order{}, fmt.Errorf("holding: %w", err)
		}
		if size > held {
			s.log.Info("sell rejected: insufficient holdings",
				zap.Int64("user_id", cmd.UserID),
				zap.Int64("instrument_id", cmd.InstrumentID),
				zap.Int64("size", size),
				zap.Int64("held", held))
			order.Status = types.OrderStatusRejected
		}
	}
	if order.Status == "" {
		order.Status = statusFor(cmd.Kind)
	}
	return s.insert(ctx, tx, order)
}

func (s *Service) executeCashTransfer(ctx context.Context, tx store.Tx, cmd CashTransferCommand) (model.Order, error) {
	cashInstrument, err := tx.CashInstrument(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAmbiguous) {
			return model.Order{}, apperr.Inconsistent(err, "cash instrument is not configured uniquely")
		}
		return model.Order{}, fmt.Errorf("load cash instrument: %w", err)
	}
	size, err := resolveSize(cmd.Quantity, cashUnitPrice)
	if err != nil {
		return model.Order{}, err
	}
	order := model.Order{
		UserID:       cmd.UserID,
		InstrumentID: cashInstrument.ID,
		Side:         cmd.Side,
		Size:         size,
		Price:        cashUnitPrice,
		Status:       types.OrderStatusFilled,
		CreatedAt:    s.now(),
	}
	if cmd.Side == types.OrderSideCashOut {
		cash, err := tx.AvailableCash(ctx, cmd.UserID)
		if err != nil {
			return model.Order{}, fmt.Errorf("available cash: %w", err)
		}
		if decimal.NewFromInt(size).GreaterThan(cash) {
			s.log.Info("cash out rejected: insufficient cash",
				zap.Int64("user_id", cmd.UserID),
				zap.Int64("size", size),
				zap.String("available", cash.StringFixed(2)))
			order.Status = types.OrderStatusRejected
		}
	}
	return s.insert(ctx, tx, order)
}

func (s *Service) insert(ctx context.Context, tx store.Tx, order model.Order) (model.Order, error) {
	saved, err := tx.InsertOrder(ctx, order)
	if err != nil {
		return model.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return saved, nil
}

// statusFor is the status of an order that passed its sufficiency check.
// LIMIT orders rest as NEW; nothing in this service fills them later.
func statusFor(kind types.OrderKind) types.OrderStatus {
	if kind == types.OrderKindLimit {
		return types.OrderStatusNew
	}
	return types.OrderStatusFilled
}

// CancelOrder moves a NEW order to CANCELLED. actorID, when non-zero, must
// own the order.
func (s *Service) CancelOrder(ctx context.Context, orderID, actorID int64) (model.Order, error) {
	if orderID <= 0 {
		return model.Order{}, apperr.Invalid("order id must be a positive integer")
	}
	var order model.Order
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx store.Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("order %d not found", orderID)
			}
			return fmt.Errorf("load order: %w", err)
		}
		if actorID != 0 && current.UserID != actorID {
			return apperr.Forbidden("order %d does not belong to user %d", orderID, actorID)
		}
		if current.Status.Terminal() {
			return apperr.Invalid("only NEW orders can be cancelled (order %d is %s)", orderID, current.Status)
		}
		order, err = tx.TransitionStatus(ctx, orderID, types.OrderStatusNew, types.OrderStatusCancelled)
		switch {
		case errors.Is(err, store.ErrConflict):
			return apperr.Invalid("only NEW orders can be cancelled")
		case errors.Is(err, store.ErrNotFound):
			return apperr.NotFound("order %d not found", orderID)
		case err != nil:
			return fmt.Errorf("cancel order: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info("order cancelled", zap.Int64("order_id", order.ID), zap.Int64("user_id", order.UserID))
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrderCancelled, UserID: order.UserID, Data: order})
	return order, nil
}

// GetOrder returns one order. actorID, when non-zero, must own it.
func (s *Service) GetOrder(ctx context.Context, orderID, actorID int64) (model.Order, error) {
	var order model.Order
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted, ReadOnly: true}, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("order %d not found", orderID)
		}
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	if actorID != 0 && order.UserID != actorID {
		return model.Order{}, apperr.Forbidden("order %d does not belong to user %d", orderID, actorID)
	}
	return order, nil
}

// ListOrders returns a page of a user's orders, newest first. before is an
// order id cursor; zero starts from the newest order. Callers pass
// DefaultHistoryLimit when the client gave no limit.
func (s *Service) ListOrders(ctx context.Context, userID, before int64, limit int) ([]model.Order, error) {
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, apperr.Invalid("limit must be between 1 and %d", MaxHistoryLimit)
	}
	if before < 0 {
		return nil, apperr.Invalid("before must not be negative")
	}
	var out []model.Order
	err := s.uow.InTx(ctx, store.TxOptions{IsoLevel: pgx.ReadCommitted, ReadOnly: true}, func(tx store.Tx) error {
		if _, err := loadUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListOrders(ctx, userID, before, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Order{}
	}
	return out, nil
}

func loadUser(ctx context.Context, users store.UserLookup, userID int64) (model.User, error) {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return u, apperr.NotFound("user %d not found", userID)
		}
		return u, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
