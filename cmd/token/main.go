// Command token prints a signed bearer token for the given subject and
// role. Operators use it to obtain an admin token for the /v1/admin
// endpoints; with the memory driver it also issues tokens for seeded users.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"carpool/internal/auth"
	"carpool/internal/config"
)

func main() {
	subject := flag.String("subject", "operator", "User ID carried in the token")
	role := flag.String("role", auth.RoleAdmin, "Token role: admin or user")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if *role != auth.RoleAdmin && *role != auth.RoleUser {
		fmt.Fprintf(os.Stderr, "token: unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg := config.Load()

	token, err := auth.GenerateToken(*subject, *role, cfg.Auth.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
