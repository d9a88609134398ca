package marketdata

import (
	"net/http"
	"strconv"
	"time"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/httputil"
	"lv-brokerage/internal/model"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type paginationMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type instrumentsResponse struct {
	Data []model.Instrument `json:"data"`
	Meta paginationMeta     `json:"meta"`
}

func (h *Handler) SearchInstruments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), DefaultSearchLimit)
	if err != nil {
		httputil.WriteError(w, r, apperr.Invalid("limit must be an integer"))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		httputil.WriteError(w, r, apperr.Invalid("offset must be an integer"))
		return
	}
	res, err := h.svc.Search(r.Context(), q.Get("query"), limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instrumentsResponse{
		Data: res.Data,
		Meta: paginationMeta{Total: res.Total, Limit: res.Limit, Offset: res.Offset, Count: len(res.Data)},
	})
}

type recordQuoteRequest struct {
	InstrumentID  int64           `json:"instrumentId"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	AsOf          time.Time       `json:"asOf"`
}

func (h *Handler) RecordQuote(w http.ResponseWriter, r *http.Request) {
	var req recordQuoteRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, apperr.Invalid("%s", err.Error()))
		return
	}
	q, err := h.svc.RecordQuote(r.Context(), RecordQuoteRequest(req))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, q)
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
