// Package main mints a development session token for running the monitor
// against a local backend.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/narvanalabs/cnpj-monitor/web/api"
)

func main() {
	userID := flag.String("user", "admin", "User ID for the token")
	email := flag.String("email", "admin@localhost", "Email for the token")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 8*time.Hour, "Token expiry duration")
	flag.Parse()

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/gentoken -secret 'your-secret-at-least-32-chars-long'")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   *userID,
		"email": *email,
		"iat":   now.Unix(),
		"exp":   now.Add(*expiry).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	// Read it back the way the monitor will.
	session, err := api.ParseSession(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading generated token: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "session for %s expires at %s\n", session.Subject, session.ExpiresAt.Format(time.RFC3339))

	fmt.Println(token)
}
