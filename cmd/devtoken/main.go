/*
main.go - Development token issuer

PURPOSE:
  Prints a bearer token for a user, signed with JWT_SECRET, so the API can
  be exercised locally with curl.

USAGE:
  JWT_SECRET=dev go run ./cmd/devtoken -user admin
  JWT_SECRET=dev go run ./cmd/devtoken -user cust-alice -role customer

  curl -H "Authorization: Bearer $(...)" localhost:8080/api/admin/revenue

  The server resolves role and active flag from its own database, so the
  user must exist there (load a scenario first). -role and -email only
  fill the claims.
*/
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/warp/consult-ledger/api"
	"github.com/warp/consult-ledger/billing"
	"github.com/warp/consult-ledger/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	userID := flag.String("user", "admin", "User ID to issue the token for")
	role := flag.String("role", "admin", "Role claim: customer, lawyer or admin")
	email := flag.String("email", "", "Email claim")
	ttl := flag.Duration("ttl", cfg.JWT.TTL, "Token lifetime")
	flag.Parse()

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	r, err := billing.ParseRole(*role)
	if err != nil {
		log.Fatal(err)
	}
	cfg.JWT.TTL = *ttl

	token, err := api.NewAuthenticator(cfg.JWT).IssueToken(billing.User{
		ID:    billing.UserID(*userID),
		Email: *email,
		Role:  r,
	})
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
