package ranking

import (
	"context"
	"fmt"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
	"github.com/nulzo/omni-router/internal/routing"
)

// SimilarityScorer rates a candidate by the embedding similarity between it and
// the prompt, mapped from [-1,1] onto [0,1]. It needs no extra model server.
type SimilarityScorer struct {
	embedder routing.Embedder
}

func NewSimilarityScorer(embedder routing.Embedder) *SimilarityScorer {
	return &SimilarityScorer{embedder: embedder}
}

func (s *SimilarityScorer) Score(ctx context.Context, prompt, candidate string) (float64, error) {
	p, err := s.embedder.Embed(ctx, prompt)
	if err != nil {
		return 0, err
	}
	c, err := s.embedder.Embed(ctx, candidate)
	if err != nil {
		return 0, err
	}
	return (routing.CosineSimilarity(p, c) + 1) / 2, nil
}

// NewScorer picks the relevance backend from config: the remote classifier when a
// URL is configured, otherwise embedding similarity.
func NewScorer(cfg config.RankerConfig, embedder routing.Embedder, client httpclient.HTTPClient) (RelevanceScorer, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "similarity"
		if cfg.URL != "" {
			backend = "remote"
		}
	}

	switch backend {
	case "remote":
		if cfg.URL == "" {
			return nil, fmt.Errorf("ranker.url is required for the remote backend")
		}
		return NewRemoteScorer(cfg, client), nil
	case "similarity":
		if embedder == nil {
			return nil, fmt.Errorf("similarity ranker needs an embedder")
		}
		return NewSimilarityScorer(embedder), nil
	default:
		return nil, fmt.Errorf("unknown ranker backend %q", backend)
	}
}
