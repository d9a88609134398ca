package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr              string
	Store                 string
	DBDSN                 string
	DBMaxConns            int32
	DBMigrate             bool
	JWTIssuer             string
	JWTSecret             string
	JWTTTL                time.Duration
	InternalTokenHash     string
	WebSocketOrigin       string
	CashCategory          string
	SerializeOrdersByUser bool
	LogLevel              string
	LogFile               string
	RateLimitRPS          float64
	RateLimitBurst        int
}

// AuthEnabled reports whether user routes require a bearer token.
func (c Config) AuthEnabled() bool { return c.JWTSecret != "" }

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first; variables already set win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	c.Store = strings.ToLower(envOr("STORE", StorePostgres))
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return c, errors.New("invalid STORE: use postgres or memory")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" && c.Store == StorePostgres {
		missing = append(missing, "DB_DSN")
	}
	maxConns, err := strconv.ParseInt(envOr("DB_MAX_CONNS", "10"), 10, 32)
	if err != nil || maxConns < 1 {
		return c, errors.New("invalid DB_MAX_CONNS")
	}
	c.DBMaxConns = int32(maxConns)
	if c.DBMigrate, err = parseBool("DB_MIGRATE", false); err != nil {
		return c, err
	}

	c.JWTIssuer = envOr("JWT_ISSUER", "lv-brokerage")
	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.JWTTTL, err = time.ParseDuration(envOr("JWT_TTL", "24h"))
	if err != nil {
		return c, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	c.InternalTokenHash = os.Getenv("INTERNAL_TOKEN_HASH")
	c.WebSocketOrigin = envOr("WS_ORIGIN", "*")

	c.CashCategory = envOr("CASH_CATEGORY", "CURRENCY")
	if c.SerializeOrdersByUser, err = parseBool("ORDER_SERIALIZE_PER_USER", true); err != nil {
		return c, err
	}

	c.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))
	c.LogFile = os.Getenv("LOG_FILE")

	c.RateLimitRPS, err = strconv.ParseFloat(envOr("RATE_LIMIT_RPS", "10"), 64)
	if err != nil || c.RateLimitRPS <= 0 {
		return c, errors.New("invalid RATE_LIMIT_RPS")
	}
	c.RateLimitBurst, err = strconv.Atoi(envOr("RATE_LIMIT_BURST", "30"))
	if err != nil || c.RateLimitBurst < 1 {
		return c, errors.New("invalid RATE_LIMIT_BURST")
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
