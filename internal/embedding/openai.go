package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. OpenAI, Ollama's
// /v1 API and text-embeddings-inference all speak this shape.
type OpenAIEmbedder struct {
	config config.EmbeddingConfig
	client httpclient.HTTPClient
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig, client httpclient.HTTPClient) *OpenAIEmbedder {
	return &OpenAIEmbedder{config: cfg, client: client}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	headers := map[string]string{}
	if e.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + e.config.APIKey
	}

	url := fmt.Sprintf("%s/embeddings", strings.TrimRight(e.config.BaseURL, "/"))
	req := embeddingRequest{Model: e.config.Model, Input: text, Dimensions: e.config.Dimensions}

	var resp embeddingResponse
	if err := httpclient.SendRequest(ctx, e.client, "POST", url, headers, req, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding in response from %s", url)
	}
	return resp.Data[0].Embedding, nil
}
