package store

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/omni-router/internal/store/model"
)

type contextKey string

const (
	ContextKeyAPIKey  contextKey = "api_key"
	ContextKeyAppName contextKey = "app_name"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Repository is the main contract for the data layer.
type Repository interface {
	APIKeys() APIKeyRepository
	Routes() RouteRepository
	Users() UserRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

type APIKeyRepository interface {
	// GetByHash retrieves an active key by its hashed value (for auth).
	GetByHash(ctx context.Context, hash string) (*model.APIKey, error)
	// Create issues a new API key.
	Create(ctx context.Context, key *model.APIKey) error
	// UpdateUsage stamps the key's last use.
	UpdateUsage(ctx context.Context, id string) error
	// ListByUserID returns all keys for a user.
	ListByUserID(ctx context.Context, userID string) ([]model.APIKey, error)
}

type RouteRepository interface {
	// Log stores a finished pipeline run.
	Log(ctx context.Context, log *model.RouteLog) error
	// GetByID returns a single run, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.RouteLog, error)
	// GetRecent returns the last N runs for a user.
	GetRecent(ctx context.Context, userID string, limit int) ([]model.RouteLog, error)
	// GetDailyStats returns runs aggregated by day since the given time.
	GetDailyStats(ctx context.Context, since time.Time) ([]model.DailyStats, error)
	// GetModelUsage counts how often each model was selected first since the given time.
	GetModelUsage(ctx context.Context, since time.Time) ([]model.ModelUsage, error)
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}
