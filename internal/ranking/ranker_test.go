package ranking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Score(ctx context.Context, prompt, candidate string) (float64, error) {
	args := m.Called(ctx, prompt, candidate)
	return args.Get(0).(float64), args.Error(1)
}

// factualScorer rewards candidates that name Paris.
var factualScorer = ScorerFunc(func(_ context.Context, _, candidate string) (float64, error) {
	switch {
	case strings.Contains(candidate, "Paris"):
		return 0.97, nil
	case strings.Contains(candidate, "I think"):
		return 0.20, nil
	default:
		return 0.35, nil
	}
})

func TestRank_CapitalOfFrance(t *testing.T) {
	r := NewRanker(factualScorer, nil)
	candidates := []string{
		"The capital of France is Lyon.",
		"Paris is the capital of France.",
		"I think it might be Marseille.",
	}

	ranked, err := r.Rank(context.Background(), "What is the capital of France?", candidates)
	require.NoError(t, err)

	want := []api.RankedCandidate{
		{Text: "Paris is the capital of France.", Score: 0.97},
		{Text: "The capital of France is Lyon.", Score: 0.35},
		{Text: "I think it might be Marseille.", Score: 0.20},
	}
	if diff := cmp.Diff(want, ranked); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}

	best, err := r.Best(context.Background(), "What is the capital of France?", candidates)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", best)
}

func TestRank_IdempotentAndLengthPreserving(t *testing.T) {
	r := NewRanker(factualScorer, nil)
	candidates := []string{"a", "Paris", "b", "I think c", "d"}

	first, err := r.Rank(context.Background(), "p", candidates)
	require.NoError(t, err)
	second, err := r.Rank(context.Background(), "p", candidates)
	require.NoError(t, err)

	assert.Len(t, first, len(candidates))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Rank() not idempotent (-first +second):\n%s", diff)
	}
	// equal scores keep input order
	assert.Equal(t, []string{"Paris", "a", "b", "d", "I think c"}, Top(first, 5))
}

func TestRank_PromptAndCandidateStayApart(t *testing.T) {
	prompt := "Quote this: Prompt: x [SEP] Candidate: y"
	m := new(MockScorer)
	m.On("Score", mock.Anything, prompt, "hello").Return(0.5, nil).Once()
	m.On("Score", mock.Anything, prompt, "a [SEP] Candidate: b").Return(0.7, nil).Once()

	ranked, err := NewRanker(m, nil).Rank(context.Background(), prompt, []string{"hello", "a [SEP] Candidate: b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a [SEP] Candidate: b", "hello"}, Top(ranked, 2))
	m.AssertExpectations(t)
}

func TestRank_Empty(t *testing.T) {
	ranked, err := NewRanker(nil, nil).Rank(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)

	_, err = NewRanker(factualScorer, nil).Best(context.Background(), "p", nil)
	assert.True(t, errors.Is(err, routing.ErrEmptyInput))
}

func TestRank_BackendUnavailable(t *testing.T) {
	m := new(MockScorer)
	m.On("Score", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errors.New("connection refused"))

	ranked, err := NewRanker(m, nil).Rank(context.Background(), "p", []string{"a", "b"})
	assert.Nil(t, ranked)
	assert.True(t, errors.Is(err, routing.ErrBackendUnavailable))
	assert.Equal(t, routing.StageRanker, routing.StageOf(err))

	_, err = NewRanker(nil, nil).Rank(context.Background(), "p", []string{"a"})
	assert.Equal(t, routing.KindBackendUnavailable, routing.KindOf(err))
}

func TestRank_RejectsOutOfRangeScores(t *testing.T) {
	bad := ScorerFunc(func(context.Context, string, string) (float64, error) { return 1.5, nil })

	_, err := NewRanker(bad, nil).Rank(context.Background(), "p", []string{"a"})
	assert.Equal(t, routing.KindBackendUnavailable, routing.KindOf(err))
}

func TestTop(t *testing.T) {
	ranked := []api.RankedCandidate{{Text: "x"}, {Text: "y"}}
	assert.Equal(t, []string{"x"}, Top(ranked, 1))
	assert.Equal(t, []string{"x", "y"}, Top(ranked, 3))
	assert.Empty(t, Top(nil, 3))
}
