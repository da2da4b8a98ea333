package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

// Well-known dev keys. Deterministic so local tooling and the e2e suite can
// hardcode them; never use outside a dev database.
const (
	devAdminKey     = "cyd_dev_admin_0000000000000000000001"
	devModeratorKey = "cyd_dev_moderator_00000000000000001"
	devViewerKey    = "cyd_dev_viewer_0000000000000000001"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("Seeding craftyard database...")

	users := core.NewUserService(pool)
	keys := core.NewAPIKeyService(pool)

	accounts := []struct {
		name   string
		role   string
		rawKey string
	}{
		{"admin", model.RoleAdmin, devAdminKey},
		{"mod", model.RoleModerator, devModeratorKey},
		{"steve", model.RoleViewer, devViewerKey},
	}

	for _, a := range accounts {
		fmt.Printf("  Seeding user %s (%s)...\n", a.name, a.role)

		user, err := users.GetByName(ctx, a.name)
		if errors.Is(err, core.ErrNotFound) {
			user, err = users.Create(ctx, a.name, a.role)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed user %s: %v\n", a.name, err)
			os.Exit(1)
		}

		// Re-running the seed must not mint duplicate keys; the key already
		// resolving to a user means it is in place.
		if _, err := keys.Authenticate(ctx, a.rawKey); err == nil {
			continue
		} else if !errors.Is(err, core.ErrPermissionDenied) {
			fmt.Fprintf(os.Stderr, "check dev key for %s: %v\n", a.name, err)
			os.Exit(1)
		}

		if _, err := keys.IssueWithRawKey(ctx, user.ID, "dev", a.rawKey); err != nil {
			fmt.Fprintf(os.Stderr, "issue dev key for %s: %v\n", a.name, err)
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Println("Seed complete!")
	fmt.Println()
	fmt.Printf("  admin (admin):      %s\n", devAdminKey)
	fmt.Printf("  mod (moderator):    %s\n", devModeratorKey)
	fmt.Printf("  steve (viewer):     %s\n", devViewerKey)
	fmt.Println()
	fmt.Println("Pass a key in the X-API-Key header.")
}
