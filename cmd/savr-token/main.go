// Command savr-token mints a bearer token for local development and scripts.
//
//	savr-token -user alice -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/splvrdge/savr/internal/cli"
	"github.com/splvrdge/savr/internal/config"
	"github.com/splvrdge/savr/internal/middleware/auth"
)

func main() {
	cli.LoadEnvFile()

	userID := flag.String("user", "", "user id the token is issued for")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: savr-token -user <id> [-ttl 24h]")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer).IssueToken(*userID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
