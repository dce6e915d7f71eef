package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/llm/openai"
)

const defaultBaseURL = "http://localhost:11434"

func init() {
	llm.Register(string(llm.Ollama), NewAdapter)
}

// Adapter talks to Ollama through its OpenAI-compatible /v1 API and uses the
// native API only for health checks.
type Adapter struct {
	llm.Provider // embeds the OpenAI adapter for chat
	config       config.ProviderConfig
	client       *http.Client
}

func NewAdapter(config config.ProviderConfig) (llm.Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(strings.TrimRight(config.BaseURL, "/"), "/v1") {
		config.BaseURL = strings.TrimRight(config.BaseURL, "/") + "/v1"
	}

	oaAdapter, err := openai.NewAdapter(config)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		Provider: oaAdapter,
		config:   config,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *Adapter) Type() string {
	return string(llm.Ollama)
}

func (a *Adapter) rootURL() string {
	return strings.TrimSuffix(strings.TrimRight(a.config.BaseURL, "/"), "/v1")
}

func (a *Adapter) Health(ctx context.Context) error {
	return httpclient.Ping(ctx, a.client, fmt.Sprintf("%s/api/version", a.rootURL()), nil)
}
