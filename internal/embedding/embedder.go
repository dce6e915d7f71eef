package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nulzo/omni-router/internal/config"
)

// Embedder turns text into a fixed-size vector, deterministically.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

// New builds the embedder selected by cfg.Backend.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Backend {
	case "", "hashing":
		return NewHashingEmbedder(cfg.Dimensions), nil
	case "openai":
		client := &http.Client{Timeout: cfg.Timeout}
		return NewOpenAIEmbedder(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}
