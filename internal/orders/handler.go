package orders

import (
	"net/http"
	"strconv"
	"time"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/httputil"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	UserID       int64            `json:"userId"`
	Side         string           `json:"side"`
	InstrumentID *int64           `json:"instrumentId"`
	OrderKind    *string          `json:"orderKind"`
	Size         *int64           `json:"size"`
	Amount       *decimal.Decimal `json:"amount"`
	Price        *decimal.Decimal `json:"price"`
}

// OrderResponse is the wire shape of an order. OrderKind is null for cash
// transfers.
type OrderResponse struct {
	ID           int64             `json:"id"`
	InstrumentID int64             `json:"instrumentId"`
	UserID       int64             `json:"userId"`
	Side         types.OrderSide   `json:"side"`
	Size         int64             `json:"size"`
	Price        httputil.Money    `json:"price"`
	OrderKind    *types.OrderKind  `json:"orderKind"`
	Status       types.OrderStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func NewOrderResponse(o model.Order) OrderResponse {
	res := OrderResponse{
		ID:           o.ID,
		InstrumentID: o.InstrumentID,
		UserID:       o.UserID,
		Side:         o.Side,
		Size:         o.Size,
		Price:        httputil.Money(o.Price),
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
	}
	if o.Kind != "" {
		k := o.Kind
		res.OrderKind = &k
	}
	return res
}

// Place handles order creation. actor is the authenticated user, zero when
// auth is disabled.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request, actor int64) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, apperr.Invalid("%s", err.Error()))
		return
	}
	if actor != 0 && req.UserID != actor {
		httputil.WriteError(w, r, apperr.Forbidden("cannot place orders for user %d", req.UserID))
		return
	}
	in := PlaceOrderRequest{
		UserID:       req.UserID,
		Side:         types.OrderSide(req.Side),
		InstrumentID: req.InstrumentID,
		Size:         req.Size,
		Amount:       req.Amount,
		Price:        req.Price,
	}
	if req.OrderKind != nil {
		k := types.OrderKind(*req.OrderKind)
		in.Kind = &k
	}
	order, err := h.svc.PlaceOrder(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, NewOrderResponse(order))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, actor int64) {
	id, ok := pathID(w, r, "id", "order id")
	if !ok {
		return
	}
	order, err := h.svc.CancelOrder(r.Context(), id, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NewOrderResponse(order))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, actor int64) {
	id, ok := pathID(w, r, "id", "order id")
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NewOrderResponse(order))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, actor int64) {
	userID, ok := pathID(w, r, "userId", "userId")
	if !ok {
		return
	}
	if actor != 0 && userID != actor {
		httputil.WriteError(w, r, apperr.Forbidden("cannot read orders of user %d", userID))
		return
	}
	q := r.URL.Query()
	limit := DefaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, r, apperr.Invalid("limit must be an integer"))
			return
		}
		limit = n
	}
	var before int64
	if raw := q.Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, r, apperr.Invalid("before must be an integer"))
			return
		}
		before = n
	}
	list, err := h.svc.ListOrders(r.Context(), userID, before, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, NewOrderResponse(o))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// pathID parses a positive integer URL parameter and writes a 400 when it
// is not one.
func pathID(w http.ResponseWriter, r *http.Request, param, label string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, r, apperr.Invalid("%s must be a positive integer", label))
		return 0, false
	}
	return id, true
}
