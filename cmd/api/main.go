package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/config"
	"lv-brokerage/internal/db"
	"lv-brokerage/internal/health"
	"lv-brokerage/internal/httpserver"
	"lv-brokerage/internal/ledger"
	"lv-brokerage/internal/logging"
	"lv-brokerage/internal/marketdata"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/orders"
	"lv-brokerage/internal/portfolio"
	"lv-brokerage/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		zap.NewExample().Fatal("init logger", zap.Error(err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		uow    store.UnitOfWork
		pinger health.Pinger
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := store.NewMemory(cfg.CashCategory)
		seedMemory(mem, cfg.CashCategory)
		uow, pinger = mem, mem
		log.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := db.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
		if err != nil {
			log.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		if cfg.DBMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				log.Fatal("migrate database", zap.Error(err))
			}
			log.Info("schema applied")
		}
		uow, pinger = store.NewPostgres(pool, ledger.NewService(), cfg.CashCategory), pool
	}

	var authSvc *auth.Service
	if cfg.AuthEnabled() {
		authSvc = auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	} else {
		log.Warn("JWT_SECRET not set; user routes are unauthenticated")
	}
	if cfg.InternalTokenHash == "" {
		log.Info("INTERNAL_TOKEN_HASH not set; internal routes disabled")
	}

	bus := marketdata.NewBus()
	orderSvc := orders.NewService(uow, bus, log.Named("orders"), cfg.SerializeOrdersByUser)
	portfolioSvc := portfolio.NewService(uow, log.Named("portfolio"))
	marketSvc := marketdata.NewService(uow, bus)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Log:               log.Named("http"),
		OrderHandler:      orders.NewHandler(orderSvc),
		PortfolioHandler:  portfolio.NewHandler(portfolioSvc),
		MarketHandler:     marketdata.NewHandler(marketSvc),
		AuthHandler:       auth.NewHandler(uow),
		HealthHandler:     health.NewHandler(pinger, cfg.Store, time.Now()),
		AuthService:       authSvc,
		InternalTokenHash: cfg.InternalTokenHash,
		WSHandler:         httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin),
		CORSOrigin:        cfg.WebSocketOrigin,
		RateLimiter:       httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("server listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
		zap.Bool("auth", cfg.AuthEnabled()),
		zap.Bool("serialize_per_user", cfg.SerializeOrdersByUser))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("serve", zap.Error(err))
	}
	log.Info("server stopped")
}

// seedMemory gives a fresh in-memory store the reference data order
// execution needs: the cash instrument and one demo user.
func seedMemory(mem *store.Memory, cashCategory string) {
	mem.AddInstrument(model.Instrument{Ticker: "ARS", Name: "Pesos", Category: cashCategory})
	mem.AddUser(model.User{ID: 1, Email: "demo@example.com", AccountNumber: "10001"})
}
