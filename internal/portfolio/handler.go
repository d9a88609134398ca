package portfolio

import (
	"net/http"
	"strconv"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type positionResponse struct {
	InstrumentID     int64          `json:"instrumentId"`
	Ticker           string         `json:"ticker"`
	Name             string         `json:"name"`
	Quantity         int64          `json:"quantity"`
	AverageCost      httputil.Money `json:"averageCost"`
	LastPrice        httputil.Money `json:"lastPrice"`
	TotalValue       httputil.Money `json:"totalValue"`
	ReturnPercentage httputil.Money `json:"returnPercentage"`
}

type portfolioResponse struct {
	UserID            int64              `json:"userId"`
	TotalAccountValue httputil.Money     `json:"totalAccountValue"`
	AvailableCash     httputil.Money     `json:"availableCash"`
	Positions         []positionResponse `json:"positions"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, actor int64) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		httputil.WriteError(w, r, apperr.Invalid("userId must be a positive integer"))
		return
	}
	if actor != 0 && actor != userID {
		httputil.WriteError(w, r, apperr.Forbidden("cannot read portfolio of user %d", userID))
		return
	}
	p, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	res := portfolioResponse{
		UserID:            p.UserID,
		TotalAccountValue: httputil.Money(p.TotalAccountValue),
		AvailableCash:     httputil.Money(p.AvailableCash),
		Positions:         make([]positionResponse, 0, len(p.Positions)),
	}
	for _, pos := range p.Positions {
		res.Positions = append(res.Positions, positionResponse{
			InstrumentID:     pos.InstrumentID,
			Ticker:           pos.Ticker,
			Name:             pos.Name,
			Quantity:         pos.Quantity,
			AverageCost:      httputil.Money(pos.AverageCost),
			LastPrice:        httputil.Money(pos.LastPrice),
			TotalValue:       httputil.Money(pos.TotalValue),
			ReturnPercentage: httputil.Money(pos.ReturnPercentage),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
