package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing data")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code by its apperr kind. Internal errors
// are logged and hidden from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	log := logging.FromContext(r.Context())
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindInvalid:
		status = http.StatusBadRequest
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindInconsistent:
		status = http.StatusUnprocessableEntity
		log.Warn("reference data missing", zap.Error(err))
	default:
		log.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, status, ErrorResponse{Error: apperr.Message(err), Code: kind.String()})
}

// Money renders a decimal as a JSON number with exactly two fraction digits.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}
