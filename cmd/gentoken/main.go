// Command gentoken issues a bearer token for a user using the server's
// JWT settings from the environment (or .env).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/config"
)

func main() {
	userID := flag.Int64("user", 0, "user id the token acts for")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TTL)")
	flag.Parse()

	// Only the JWT keys matter here.
	if os.Getenv("DB_DSN") == "" {
		os.Setenv("STORE", config.StoreMemory)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !cfg.AuthEnabled() {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	lifetime := cfg.JWTTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), lifetime).IssueToken(*userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
}
