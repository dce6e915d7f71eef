package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) APIKeys() store.APIKeyRepository {
	return &apiKeyRepo{db: r.executor}
}

func (r *SqliteRepository) Routes() store.RouteRepository {
	return &routeRepo{db: r.executor}
}

func (r *SqliteRepository) Users() store.UserRepository {
	return &userRepo{db: r.executor}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

type apiKeyRepo struct {
	db DB
}

func (r *apiKeyRepo) GetByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	// active check is part of the query for speed
	query := `SELECT * FROM api_keys WHERE key_hash = ? AND is_active = 1`
	if err := r.db.GetContext(ctx, &key, query, hash); err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (r *apiKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	query := `
	INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, expires_at, is_active, created_at, updated_at)
	VALUES (:id, :user_id, :name, :key_hash, :key_prefix, :expires_at, :is_active, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, query, key)
	return err
}

func (r *apiKeyRepo) UpdateUsage(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}

func (r *apiKeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := r.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at`, userID)
	return keys, err
}

type routeRepo struct {
	db DB
}

func (r *routeRepo) Log(ctx context.Context, log *model.RouteLog) error {
	query := `
	INSERT INTO route_logs (
		id, user_id, api_key_id, app_name, endpoint, query_chars,
		task_type, mode, top_model, top_score,
		queried_models, failed_models, candidate_count, fused,
		status, error_kind, latency_ms, created_at
	) VALUES (
		:id, :user_id, :api_key_id, :app_name, :endpoint, :query_chars,
		:task_type, :mode, :top_model, :top_score,
		:queried_models, :failed_models, :candidate_count, :fused,
		:status, :error_kind, :latency_ms, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

func (r *routeRepo) GetByID(ctx context.Context, id string) (*model.RouteLog, error) {
	var log model.RouteLog
	if err := r.db.GetContext(ctx, &log, `SELECT * FROM route_logs WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &log, nil
}

func (r *routeRepo) GetRecent(ctx context.Context, userID string, limit int) ([]model.RouteLog, error) {
	var logs []model.RouteLog
	query := `SELECT * FROM route_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &logs, query, userID, limit)
	return logs, err
}

func (r *routeRepo) GetDailyStats(ctx context.Context, since time.Time) ([]model.DailyStats, error) {
	var stats []model.DailyStats
	query := `
		SELECT
			DATE(created_at) AS date,
			COUNT(*) AS total_requests,
			SUM(CASE WHEN mode = 'ensemble' THEN 1 ELSE 0 END) AS ensemble_requests,
			SUM(CASE WHEN status != 'ok' THEN 1 ELSE 0 END) AS failed_requests,
			SUM(candidate_count) AS total_candidates,
			AVG(latency_ms) AS avg_latency
		FROM route_logs
		WHERE created_at >= ?
		GROUP BY date
		ORDER BY date DESC`
	err := r.db.SelectContext(ctx, &stats, query, since.UTC())
	return stats, err
}

func (r *routeRepo) GetModelUsage(ctx context.Context, since time.Time) ([]model.ModelUsage, error) {
	var usage []model.ModelUsage
	query := `
		SELECT
			top_model AS model_id,
			COUNT(*) AS selected,
			AVG(top_score) AS avg_score
		FROM route_logs
		WHERE created_at >= ? AND top_model != ''
		GROUP BY top_model
		ORDER BY selected DESC, model_id`
	err := r.db.SelectContext(ctx, &usage, query, since.UTC())
	return usage, err
}

type userRepo struct {
	db DB
}

func (r *userRepo) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	query := `
	INSERT INTO users (id, email, name, role, created_at, updated_at)
	VALUES (:id, :email, :name, :role, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, query, user)
	return err
}
