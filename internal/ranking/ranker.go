package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// RelevanceScorer returns the probability in [0,1] that candidate is a good
// answer to prompt. The two are passed apart so no delimiter inside either can
// blur the boundary.
type RelevanceScorer interface {
	Score(ctx context.Context, prompt, candidate string) (float64, error)
}

// ScorerFunc adapts a function to RelevanceScorer.
type ScorerFunc func(ctx context.Context, prompt, candidate string) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, prompt, candidate string) (float64, error) {
	return f(ctx, prompt, candidate)
}

const defaultParallel = 8

// PairText is the single-string input format the remote relevance classifier
// was trained on.
func PairText(prompt, candidate string) string {
	return fmt.Sprintf("Prompt: %s [SEP] Candidate: %s", prompt, candidate)
}

// Ranker orders candidate answers by classifier relevance.
type Ranker struct {
	scorer   RelevanceScorer
	parallel int
	logger   *zap.Logger
}

func NewRanker(scorer RelevanceScorer, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{scorer: scorer, parallel: defaultParallel, logger: logger}
}

// Rank scores every candidate and sorts descending, keeping input order on ties.
// Zero candidates yield an empty list. Any scorer failure fails the whole call.
func (r *Ranker) Rank(ctx context.Context, prompt string, candidates []string) ([]api.RankedCandidate, error) {
	if len(candidates) == 0 {
		return []api.RankedCandidate{}, nil
	}
	if r.scorer == nil {
		return nil, routing.NewStageError(routing.KindBackendUnavailable, routing.StageRanker, fmt.Errorf("no relevance scorer configured"))
	}

	ranked := make([]api.RankedCandidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, c := range candidates {
		g.Go(func() error {
			score, err := r.scorer.Score(gctx, prompt, c)
			if err != nil {
				return err
			}
			if math.IsNaN(score) || score < 0 || score > 1 {
				return fmt.Errorf("relevance score %v outside [0,1]", score)
			}
			ranked[i] = api.RankedCandidate{Text: c, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("candidate ranking failed", zap.Int("candidates", len(candidates)), zap.Error(err))
		return nil, routing.NewStageError(routing.KindBackendUnavailable, routing.StageRanker, err)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// Best returns the text of the highest ranked candidate.
func (r *Ranker) Best(ctx context.Context, prompt string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", routing.NewStageError(routing.KindEmptyInput, routing.StageRanker, routing.ErrEmptyInput)
	}
	ranked, err := r.Rank(ctx, prompt, candidates)
	if err != nil {
		return "", err
	}
	return ranked[0].Text, nil
}

// Top returns the texts of the first k ranked candidates.
func Top(ranked []api.RankedCandidate, k int) []string {
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, 0, k)
	for _, c := range ranked[:k] {
		out = append(out, c.Text)
	}
	return out
}
