package routing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/omni-router/pkg/api"
)

type stubEmbedder struct {
	vecs  map[string][]float64
	err   error
	calls atomic.Int32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func mustRegistry(t *testing.T, defs []api.ModelDefinition, emb Embedder) *Registry {
	t.Helper()
	r, err := LoadRegistry(context.Background(), defs, DefaultCeilings(), emb)
	require.NoError(t, err)
	return r
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 2, 3}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float64{-1, -2, -3}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)

	assert.Equal(t, 0.0, CosineSimilarity(a, []float64{0, 0, 0}), "zero norm")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil), "empty")
	assert.Equal(t, 0.0, CosineSimilarity(a, []float64{1, 2}), "dimension mismatch")
}

func TestSemanticScorer_RangeAndSelfSimilarity(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float64{
		"writes code":    {1, 0, 0},
		"answers trivia": {0, 1, 0},
		"opposite":       {-1, 0, 0},
		"degenerate":     {0, 0, 0},
	}}
	reg := mustRegistry(t, []api.ModelDefinition{
		{ID: "coder", Description: "writes code"},
		{ID: "quiz", Description: "answers trivia"},
		{ID: "anti", Description: "opposite"},
		{ID: "empty", Description: "degenerate"},
	}, emb)

	scores, err := NewSemanticScorer(emb, reg).Score(context.Background(), "writes code")
	require.NoError(t, err)

	require.Len(t, scores, 4)
	for id, s := range scores {
		assert.GreaterOrEqual(t, s, -1.0, id)
		assert.LessOrEqual(t, s, 1.0, id)
	}
	assert.InDelta(t, 1.0, scores["coder"], 1e-12)
	assert.InDelta(t, 0.0, scores["quiz"], 1e-12)
	assert.InDelta(t, -1.0, scores["anti"], 1e-12)
	assert.Equal(t, 0.0, scores["empty"])
}

func TestSemanticScorer_EmptyQuerySkipsBackend(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float64{"d": {1, 1}}}
	reg := mustRegistry(t, []api.ModelDefinition{{ID: "m", Description: "d"}}, emb)
	before := emb.calls.Load()

	scores, err := NewSemanticScorer(emb, reg).Score(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, ScoreSet{"m": 0}, scores)
	assert.Equal(t, before, emb.calls.Load())
}

func TestSemanticScorer_BackendFailure(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float64{"d": {1, 1}}}
	reg := mustRegistry(t, []api.ModelDefinition{{ID: "m", Description: "d"}}, emb)

	emb.err = errors.New("connection refused")
	_, err := NewSemanticScorer(emb, reg).Score(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.Equal(t, StageEmbedding, StageOf(err))
}

func TestBenchmarkScore(t *testing.T) {
	reg := mustRegistry(t, []api.ModelDefinition{
		{ID: "none", Description: "x"},
		{ID: "full", Description: "x", Benchmarks: map[string]float64{"MMLU": 0.9, "GPQA": 0.72, "HumanEval": 0.95, "MGSM": 0.93}},
		{ID: "partial", Description: "x", Benchmarks: map[string]float64{"MMLU": 0.45}},
	}, nil)
	ts, err := NewTaskSet(nil)
	require.NoError(t, err)
	general, _ := ts.Get(TaskGeneral)

	scores := BenchmarkScores(general, reg)

	assert.Equal(t, 0.0, scores["none"], "no benchmarks scores exactly zero")
	assert.InDelta(t, 1.0, scores["full"], 1e-9, "every benchmark at ceiling")
	// only MMLU matched: 0.45/0.9 weighted by 0.3 and divided by 0.3, not by the nominal 1.0
	assert.InDelta(t, 0.5, scores["partial"], 1e-9)
}

func TestBenchmarkScore_MissingBenchmarkGuard(t *testing.T) {
	p := &ModelProfile{Normalized: map[string]float64{"MATH": 0.8}}
	weights := []BenchmarkWeight{{"MATH", 0.7}, {"GPQA", 0.3}}

	assert.InDelta(t, 0.8, BenchmarkScore(p, weights), 1e-12)
}

func TestSemanticWeight_Boundary(t *testing.T) {
	three := &ModelProfile{Benchmarks: map[string]float64{"A": 0.1, "B": 0.2, "C": 0.3}}
	four := &ModelProfile{Benchmarks: map[string]float64{"A": 0.1, "B": 0.2, "C": 0.3, "D": 0.4}}
	fourWithSentinel := &ModelProfile{Benchmarks: map[string]float64{"A": 0.1, "B": 0.2, "C": 0.3, "BFCL": 0}}

	assert.Equal(t, 0.6, SemanticWeight(three))
	assert.Equal(t, 0.4, SemanticWeight(four))
	assert.Equal(t, 0.6, SemanticWeight(fourWithSentinel))
}

func TestCombine(t *testing.T) {
	reg := mustRegistry(t, []api.ModelDefinition{
		{ID: "rich", Description: "x", Benchmarks: map[string]float64{"MMLU": 0.8, "GPQA": 0.5, "HumanEval": 0.9, "MGSM": 0.8}},
		{ID: "sparse", Description: "x", Benchmarks: map[string]float64{"MMLU": 0.8}},
	}, nil)

	combined, weights := Combine(
		ScoreSet{"rich": 0.5, "sparse": 0.5},
		ScoreSet{"rich": 1.0, "sparse": 1.0},
		reg,
	)

	require.Len(t, combined, 2)
	assert.InDelta(t, 0.4*0.5+0.6*1.0, combined["rich"], 1e-12)
	assert.InDelta(t, 0.6*0.5+0.4*1.0, combined["sparse"], 1e-12)
	assert.Equal(t, ScoreSet{"rich": 0.4, "sparse": 0.6}, weights)
}

func TestCombine_OnlyModelsInSemantic(t *testing.T) {
	reg := mustRegistry(t, []api.ModelDefinition{{ID: "a", Description: "x"}, {ID: "b", Description: "x"}}, nil)

	combined, _ := Combine(ScoreSet{"a": 1}, ScoreSet{"a": 0, "b": 1}, reg)
	assert.Len(t, combined, 1)
	assert.Contains(t, combined, "a")
}
