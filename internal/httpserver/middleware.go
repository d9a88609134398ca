package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/httputil"
	"lv-brokerage/internal/logging"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey string

const actorKey ctxKey = "actor"

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id, puts a request-scoped logger
// in the context and logs one line when the request completes.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)
			log := base.With(zap.String("request_id", reqID))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), log)))
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// WithAuth requires a bearer token and stores its user id as the request
// actor.
func WithAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token", Code: "unauthorized"})
				return
			}
			userID, err := svc.ParseToken(strings.TrimSpace(parts[1]))
			if err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid token", Code: "unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns the authenticated user id, or zero when auth is disabled.
func Actor(r *http.Request) int64 {
	id, _ := r.Context().Value(actorKey).(int64)
	return id
}

// InternalAuth checks the X-Internal-Token header against a bcrypt hash.
func InternalAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Internal-Token")
			if token == "" || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token", Code: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
