package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/skygig/internal/auth"
	"github.com/sudo-init-do/skygig/internal/config"
)

// mint_token issues a bearer token for local testing.
// Usage:
//
//	go run ./cmd/adminutil/mint_token -user poster-1 -role poster
func main() {
	userID := flag.String("user", "", "user id to put in the token")
	role := flag.String("role", auth.RoleSeeker, "poster, seeker or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/mint_token -user <id> -role poster|seeker|admin")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	token, err := auth.IssueToken(cfg.JWTSecret, *userID, *role, *ttl, time.Now())
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
