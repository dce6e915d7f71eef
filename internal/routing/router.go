package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nulzo/omni-router/pkg/api"
)

// Router ranks registered models for a query by semantic fit and benchmark strength.
type Router struct {
	registry   *Registry
	tasks      *TaskSet
	classifier *TaskClassifier
	semantic   *SemanticScorer
	logger     *zap.Logger
}

func NewRouter(registry *Registry, tasks *TaskSet, embedder Embedder, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:   registry,
		tasks:      tasks,
		classifier: NewTaskClassifier(tasks),
		semantic:   NewSemanticScorer(embedder, registry),
		logger:     logger,
	}
}

func (r *Router) Registry() *Registry {
	return r.registry
}

func (r *Router) Tasks() *TaskSet {
	return r.tasks
}

// DetectTask exposes the keyword classifier.
func (r *Router) DetectTask(query string) string {
	return r.classifier.Detect(query)
}

// Route resolves the task, scores every model and returns them best first.
// An empty registry yields a decision with no models and no explanation.
func (r *Router) Route(ctx context.Context, query, taskOverride string) (*api.RoutingDecision, error) {
	taskName, err := r.classifier.Resolve(query, taskOverride)
	if err != nil {
		return nil, err
	}
	task, _ := r.tasks.Get(taskName)

	decision := &api.RoutingDecision{
		TaskType: taskName,
		Models:   []api.ModelScore{},
		Scores: api.ScoreBreakdown{
			Semantic:       map[string]float64{},
			Benchmark:      map[string]float64{},
			Combined:       map[string]float64{},
			SemanticWeight: map[string]float64{},
		},
	}
	if r.registry.Len() == 0 {
		r.logger.Warn("routing against an empty registry", zap.String("task", taskName))
		return decision, nil
	}

	semantic, err := r.semantic.Score(ctx, query)
	if err != nil {
		return nil, err
	}
	benchmark := BenchmarkScores(task, r.registry)
	combined, weights := Combine(semantic, benchmark, r.registry)

	models := make([]api.ModelScore, 0, len(combined))
	for _, p := range r.registry.Profiles() {
		if score, ok := combined[p.ID]; ok {
			models = append(models, api.ModelScore{ModelID: p.ID, Score: score})
		}
	}
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].Score > models[j].Score
	})

	decision.Models = models
	decision.Scores = api.ScoreBreakdown{
		Semantic:       semantic,
		Benchmark:      benchmark,
		Combined:       combined,
		SemanticWeight: weights,
	}

	top, err := r.registry.Get(models[0].ModelID)
	if err != nil {
		return nil, err
	}
	decision.Explanation = Explain(query, task, top)

	r.logger.Debug("routed query",
		zap.String("task", taskName),
		zap.String("top_model", top.ID),
		zap.Float64("top_score", models[0].Score),
		zap.Int("models", len(models)),
	)

	return decision, nil
}

// Explain renders the human readable reasoning for the top model.
// Benchmark lines use raw scores, not normalized ones.
func Explain(query string, task TaskProfile, top *ModelProfile) string {
	lines := []string{
		fmt.Sprintf("Query: '%s'", query),
		fmt.Sprintf("Detected task type: %s", task.Name),
		fmt.Sprintf("Top model selected: %s", top.ID),
		fmt.Sprintf("Reason: %s", firstSentence(top.Description)),
		"Key benchmarks for this task:",
	}
	for _, w := range task.Weights {
		lines = append(lines, fmt.Sprintf("- %s: %.1f%% (weight: %.1f%%)", w.Benchmark, top.Benchmarks[w.Benchmark]*100, w.Weight*100))
	}
	return strings.Join(lines, "\n")
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i]
	}
	return s
}
