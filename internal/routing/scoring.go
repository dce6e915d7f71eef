package routing

import (
	"context"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	// richBenchmarkCount is the number of recorded benchmarks above which a model
	// leans on its benchmark score rather than on semantic similarity.
	richBenchmarkCount = 3

	semanticWeightRich   = 0.4
	semanticWeightSparse = 0.6
)

// ScoreSet maps model id to a score for one request.
type ScoreSet map[string]float64

// CosineSimilarity returns 0 when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := floats.Dot(a, b) / (normA * normB)
	// clamp rounding noise so self-similarity stays within [-1, 1]
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// SemanticScorer scores every registered model by query/description similarity.
type SemanticScorer struct {
	embedder Embedder
	registry *Registry
}

func NewSemanticScorer(embedder Embedder, registry *Registry) *SemanticScorer {
	return &SemanticScorer{embedder: embedder, registry: registry}
}

// Score embeds the query once. A blank query scores every model 0 without calling the backend.
func (s *SemanticScorer) Score(ctx context.Context, query string) (ScoreSet, error) {
	out := make(ScoreSet, s.registry.Len())

	if strings.TrimSpace(query) == "" {
		for _, p := range s.registry.Profiles() {
			out[p.ID] = 0
		}
		return out, nil
	}

	if s.embedder == nil {
		return nil, NewStageError(KindBackendUnavailable, StageEmbedding, ErrBackendUnavailable)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewStageError(KindBackendUnavailable, StageEmbedding, err)
	}

	for _, p := range s.registry.Profiles() {
		out[p.ID] = CosineSimilarity(vec, p.Embedding)
	}
	return out, nil
}

// BenchmarkScore is the weighted mean of the model's normalized scores over the task
// benchmarks it actually has. The divisor is the sum of the weights used.
func BenchmarkScore(p *ModelProfile, weights []BenchmarkWeight) float64 {
	var sum, used float64
	for _, w := range weights {
		v, ok := p.Normalized[w.Benchmark]
		if !ok {
			continue
		}
		sum += v * w.Weight
		used += w.Weight
	}
	if used == 0 {
		return 0
	}
	return sum / used
}

// BenchmarkScores scores every registered model under the task weights.
func BenchmarkScores(task TaskProfile, registry *Registry) ScoreSet {
	out := make(ScoreSet, registry.Len())
	for _, p := range registry.Profiles() {
		out[p.ID] = BenchmarkScore(p, task.Weights)
	}
	return out
}

// SemanticWeight returns the share given to the semantic score for a model.
func SemanticWeight(p *ModelProfile) float64 {
	if p.RecordedBenchmarks() > richBenchmarkCount {
		return semanticWeightRich
	}
	return semanticWeightSparse
}

// Combine blends the two score sets per model, one entry per model in semantic.
// It also returns the semantic weight applied to each model.
func Combine(semantic, benchmark ScoreSet, registry *Registry) (combined, weights ScoreSet) {
	combined = make(ScoreSet, len(semantic))
	weights = make(ScoreSet, len(semantic))

	for id, sem := range semantic {
		w := semanticWeightSparse
		if p, err := registry.Get(id); err == nil {
			w = SemanticWeight(p)
		}
		weights[id] = w
		combined[id] = w*sem + (1-w)*benchmark[id]
	}
	return combined, weights
}
