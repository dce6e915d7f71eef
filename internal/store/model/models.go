package model

import (
	"database/sql"
	"strings"
	"time"
)

// User represents a tenant or individual developer.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"` // 'admin', 'user'
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// APIKey is the credential used to access the API.
type APIKey struct {
	ID         string       `db:"id" json:"id"`
	UserID     string       `db:"user_id" json:"user_id"`
	Name       string       `db:"name" json:"name"`
	KeyHash    string       `db:"key_hash" json:"-"`            // Never return hash
	KeyPrefix  string       `db:"key_prefix" json:"key_prefix"` // Display only
	ExpiresAt  sql.NullTime `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt.Valid && now.After(k.ExpiresAt.Time)
}

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RouteLog captures one pass through the routing pipeline.
type RouteLog struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	APIKeyID       string    `db:"api_key_id" json:"api_key_id"`
	AppName        string    `db:"app_name" json:"app_name"`
	Endpoint       string    `db:"endpoint" json:"endpoint"` // route, completions, chat
	QueryChars     int       `db:"query_chars" json:"query_chars"`
	TaskType       string    `db:"task_type" json:"task_type"`
	Mode           string    `db:"mode" json:"mode"`
	TopModel       string    `db:"top_model" json:"top_model"`
	TopScore       float64   `db:"top_score" json:"top_score"`
	QueriedModels  string    `db:"queried_models" json:"queried_models"` // comma separated
	FailedModels   string    `db:"failed_models" json:"failed_models"`   // comma separated
	CandidateCount int       `db:"candidate_count" json:"candidate_count"`
	Fused          bool      `db:"fused" json:"fused"`
	Status         string    `db:"status" json:"status"`
	ErrorKind      string    `db:"error_kind" json:"error_kind"`
	LatencyMS      int64     `db:"latency_ms" json:"latency_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// JoinIDs flattens a model list for storage.
func JoinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitIDs reverses JoinIDs.
func SplitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// DailyStats represents aggregated pipeline runs for a specific day.
type DailyStats struct {
	Date             string  `db:"date" json:"date"`
	TotalRequests    int     `db:"total_requests" json:"total_requests"`
	EnsembleRequests int     `db:"ensemble_requests" json:"ensemble_requests"`
	FailedRequests   int     `db:"failed_requests" json:"failed_requests"`
	TotalCandidates  int     `db:"total_candidates" json:"total_candidates"`
	AverageLatency   float64 `db:"avg_latency" json:"avg_latency"`
}

// ModelUsage counts how often a model was the top pick.
type ModelUsage struct {
	ModelID  string  `db:"model_id" json:"model_id"`
	Selected int     `db:"selected" json:"selected"`
	AvgScore float64 `db:"avg_score" json:"avg_score"`
}
