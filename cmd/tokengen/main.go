// tokengen mints bearer tokens for development and testing. Production
// deployments receive tokens from the central auth service instead.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/token"
)

func main() {
	var (
		userUUID = flag.String("uuid", "", "subject uuid (default: random)")
		name     = flag.String("name", "dev", "display name claim")
		scope    = flag.String("scope", "user", "scope claim: user or admin")
		ttl      = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("AUTH_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_SECRET is required")
		os.Exit(1)
	}

	subject := uuid.New()
	if *userUUID != "" {
		parsed, err := uuid.Parse(*userUUID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid uuid %q\n", *userUUID)
			os.Exit(1)
		}
		subject = parsed
	}

	if *scope != models.ScopeUser && *scope != models.ScopeAdmin {
		fmt.Fprintf(os.Stderr, "invalid scope %q\n", *scope)
		os.Exit(1)
	}

	signed, err := token.Mint(models.Identity{
		UUID:  subject,
		Name:  *name,
		Scope: *scope,
	}, secret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(signed)
}
