package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/internal/server/middleware"
	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
	"github.com/nulzo/omni-router/internal/store/sqlite"
)

const keyPrefix = "sk-omni-"

func main() {
	var (
		dbPath string
		email  string
		name   string
		ttl    time.Duration
	)

	root := &cobra.Command{
		Use:   "seed",
		Short: "Create a user and an API key for the router",
		RunE: func(c *cobra.Command, _ []string) error {
			return seed(c.Context(), dbPath, email, name, ttl)
		},
	}
	root.Flags().StringVar(&dbPath, "db", "omni.db", "path to the sqlite database")
	root.Flags().StringVar(&email, "email", "test@example.com", "user email")
	root.Flags().StringVar(&name, "name", "Test User", "user name")
	root.Flags().DurationVar(&ttl, "ttl", 0, "key lifetime, 0 for no expiry")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, dbPath, email, name string, ttl time.Duration) error {
	repo, err := sqlite.NewSQLiteStorage(dbPath, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      "user",
		CreatedAt: now,
		UpdatedAt: now,
	}

	rawKey := keyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := &model.APIKey{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      "Seed Key",
		KeyHash:   middleware.HashKey(rawKey),
		KeyPrefix: rawKey[:len(keyPrefix)+4],
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ttl > 0 {
		key.ExpiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	err = repo.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return tx.APIKeys().Create(ctx, key)
	})
	if err != nil {
		fmt.Printf("%s %v\n", cli.CrossMark(), err)
		return err
	}

	fmt.Printf("%s Seeded user %s\n", cli.CheckMark(), cli.Style(user.ID, cli.Bold))
	fmt.Printf("%s API Key: %s\n", cli.Arrow(), cli.Style(rawKey, cli.Green))
	fmt.Printf("  Authorization: Bearer %s\n", rawKey)
	return nil
}
