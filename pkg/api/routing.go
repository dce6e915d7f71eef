package api

import "time"

// Mode is the outcome of the cheap binary router.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeEnsemble Mode = "ensemble"
)

// TaskAuto asks the router to detect the task type from the query.
const TaskAuto = "auto"

// ModelScore is one entry of the ranked model list.
type ModelScore struct {
	ModelID string  `json:"model_id"`
	Score   float64 `json:"score"`
}

// ScoreBreakdown holds the per-request score sets, keyed by model id.
type ScoreBreakdown struct {
	Semantic       map[string]float64 `json:"semantic"`
	Benchmark      map[string]float64 `json:"benchmark"`
	Combined       map[string]float64 `json:"combined"`
	SemanticWeight map[string]float64 `json:"semantic_weight"`
}

// RoutingDecision is the read-only result of a routing pass.
type RoutingDecision struct {
	TaskType    string         `json:"task_type"`
	Models      []ModelScore   `json:"models"`
	Scores      ScoreBreakdown `json:"scores"`
	Explanation string         `json:"explanation"`
}

// Top returns the ids of the n best models (fewer if the decision holds fewer).
func (d *RoutingDecision) Top(n int) []string {
	if n > len(d.Models) {
		n = len(d.Models)
	}
	ids := make([]string, 0, n)
	for _, m := range d.Models[:n] {
		ids = append(ids, m.ModelID)
	}
	return ids
}

// RankedCandidate is a candidate answer with its relevance score.
type RankedCandidate struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type RouteRequest struct {
	Query string `json:"query" binding:"required"`
	Task  string `json:"task,omitempty"`
}

type ModeRequest struct {
	Query string `json:"query" binding:"required"`
}

type ModeResponse struct {
	Mode Mode `json:"mode"`
}

type RankRequest struct {
	Prompt     string   `json:"prompt" binding:"required"`
	Candidates []string `json:"candidates"`
}

type RankResponse struct {
	Object string            `json:"object"`
	Data   []RankedCandidate `json:"data"`
}

type CompletionRequest struct {
	Query     string `json:"query" binding:"required"`
	Task      string `json:"task,omitempty"`
	Mode      Mode   `json:"mode,omitempty" binding:"omitempty,oneof=single ensemble"`
	MaxTokens int    `json:"max_tokens,omitempty" binding:"omitempty,min=1,max=32768"`
}

type CompletionResponse struct {
	ID         string            `json:"id"`
	Mode       Mode              `json:"mode"`
	Answer     string            `json:"answer"`
	Decision   *RoutingDecision  `json:"decision"`
	Queried    []string          `json:"queried_models"`
	Failed     []string          `json:"failed_models,omitempty"`
	Candidates []RankedCandidate `json:"candidates,omitempty"`
	Fused      bool              `json:"fused"`
	LatencyMS  int64             `json:"latency_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RouteLogResponse is the stored record of a completed pipeline run.
type RouteLogResponse struct {
	ID             string    `json:"id"`
	TaskType       string    `json:"task_type"`
	Mode           Mode      `json:"mode"`
	TopModel       string    `json:"top_model"`
	TopScore       float64   `json:"top_score"`
	QueriedModels  []string  `json:"queried_models"`
	FailedModels   []string  `json:"failed_models"`
	CandidateCount int       `json:"candidate_count"`
	Fused          bool      `json:"fused"`
	Endpoint       string    `json:"endpoint"`
	Status         string    `json:"status"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	LatencyMS      int64     `json:"latency_ms"`
	AppName        string    `json:"app_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type DailyUsage struct {
	Date             string  `json:"date"`
	Requests         int     `json:"requests"`
	EnsembleRequests int     `json:"ensemble_requests"`
	FailedRequests   int     `json:"failed_requests"`
	Candidates       int     `json:"candidates"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
}

type ModelUsage struct {
	ModelID  string  `json:"model_id"`
	Selected int     `json:"selected"`
	AvgScore float64 `json:"avg_score"`
}

// UsageResponse summarizes pipeline runs over the last Days days.
type UsageResponse struct {
	Days   int          `json:"days"`
	Daily  []DailyUsage `json:"daily"`
	Models []ModelUsage `json:"models"`
}
