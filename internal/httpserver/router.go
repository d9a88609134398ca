package httpserver

import (
	"net/http"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/health"
	"lv-brokerage/internal/marketdata"
	"lv-brokerage/internal/orders"
	"lv-brokerage/internal/portfolio"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Log              *zap.Logger
	OrderHandler     *orders.Handler
	PortfolioHandler *portfolio.Handler
	MarketHandler    *marketdata.Handler
	AuthHandler      *auth.Handler
	HealthHandler    *health.Handler
	WSHandler        http.Handler
	CORSOrigin       string
	RateLimiter      *RateLimiter

	// AuthService is nil when user routes are open.
	AuthService *auth.Service

	// InternalTokenHash is a bcrypt hash; empty disables internal routes.
	InternalTokenHash string
}

// actorHandler is a handler that acts on behalf of the authenticated user.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor int64)

func withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r, Actor(r))
	}
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(d.CORSOrigin).Handler)
	r.Use(SecurityHeaders)
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/instruments", d.MarketHandler.SearchInstruments)
		r.Get("/ws", d.WSHandler.ServeHTTP)
		r.Group(func(r chi.Router) {
			if d.AuthService != nil {
				r.Use(WithAuth(d.AuthService))
				r.Get("/me", withActor(d.AuthHandler.Me))
			}
			r.Post("/orders", withActor(d.OrderHandler.Place))
			r.Get("/orders/{id}", withActor(d.OrderHandler.Get))
			r.Post("/orders/{id}/cancel", withActor(d.OrderHandler.Cancel))
			r.Delete("/orders/{id}", withActor(d.OrderHandler.Cancel))
			r.Get("/users/{userId}/orders", withActor(d.OrderHandler.History))
			r.Get("/portfolio/{userId}", withActor(d.PortfolioHandler.Get))
		})
		if d.InternalTokenHash != "" {
			r.Group(func(r chi.Router) {
				r.Use(InternalAuth(d.InternalTokenHash))
				r.Post("/internal/quotes", d.MarketHandler.RecordQuote)
			})
		}
	})
	return r
}

func corsHandler(origin string) *cors.Cors {
	if origin == "" {
		origin = "*"
	}
	return cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Internal-Token", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         600,
	})
}
