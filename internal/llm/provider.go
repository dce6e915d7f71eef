package llm

import (
	"context"

	"github.com/nulzo/omni-router/pkg/api"
)

type ProviderName string

const (
	Ollama    ProviderName = "ollama"
	OpenAI    ProviderName = "openai"
	Anthropic ProviderName = "anthropic"
	Google    ProviderName = "google"
	BFL       ProviderName = "bfl"
)

// Provider is a text generation backend. Chat returns req.N choices when the
// upstream supports sampling several completions per call, otherwise one.
type Provider interface {
	Name() string
	Type() string // e.g., "openai", "anthropic"
	Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)
	Health(ctx context.Context) error
}

// ImageProvider is implemented by providers that can also generate images.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error)
}
