// Command devtoken prints a dashboard bearer token for local use.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/atiendo/backend/internal/auth"
	"github.com/atiendo/backend/internal/config"
)

func main() {
	tenant := flag.String("tenant", "", "tenant id (required)")
	user := flag.String("user", "dev", "user id")
	email := flag.String("email", "dev@localhost", "user email")
	role := flag.String("role", "admin", "user role")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *tenant == "" {
		fmt.Fprintln(os.Stderr, "-tenant is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := auth.Issue(cfg.JWTSecret, auth.Claims{
		UserID:   *user,
		TenantID: *tenant,
		Email:    *email,
		Role:     *role,
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
