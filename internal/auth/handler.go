package auth

import (
	"errors"
	"net/http"

	"lv-brokerage/internal/apperr"
	"lv-brokerage/internal/httputil"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/store"

	"github.com/jackc/pgx/v5"
)

type Handler struct {
	users store.UnitOfWork
}

func NewHandler(users store.UnitOfWork) *Handler {
	return &Handler{users: users}
}

// Me returns the user the bearer token was issued for.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID int64) {
	var user model.User
	err := h.users.InTx(r.Context(), store.TxOptions{IsoLevel: pgx.ReadCommitted, ReadOnly: true}, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user %d not found", userID)
		}
		return err
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
