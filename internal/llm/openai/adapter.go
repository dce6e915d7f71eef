package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/pkg/api"
)

func init() {
	llm.Register(string(llm.OpenAI), NewAdapter)
}

// Adapter speaks the OpenAI chat completions API. DeepSeek, Together and other
// compatible hosts use it with a different base_url.
type Adapter struct {
	config config.ProviderConfig
	client *http.Client
}

func NewAdapter(config config.ProviderConfig) (llm.Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		config: config,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (a *Adapter) Name() string {
	return a.config.ID
}

func (a *Adapter) Type() string {
	return string(llm.OpenAI)
}

// upstreamErrorResponse mirrors the standard OpenAI error shape
type upstreamErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Param   interface{} `json:"param"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

func (a *Adapter) handleUpstreamError(err error) error {
	var upstreamErr *httpclient.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return err
	}

	// parse the specific upstream error format
	var apiErr upstreamErrorResponse
	if jsonErr := json.Unmarshal(upstreamErr.Body, &apiErr); jsonErr != nil || apiErr.Error.Message == "" {
		return api.NewError(
			upstreamErr.StatusCode,
			"Upstream Error",
			string(upstreamErr.Body),
			api.WithLog(err),
		)
	}

	return api.NewError(
		upstreamErr.StatusCode,
		"Upstream Provider Error",
		apiErr.Error.Message,
		api.WithExtension("provider", a.config.ID),
		api.WithExtension("upstream_code", apiErr.Error.Code),
		api.WithExtension("upstream_type", apiErr.Error.Type),
		api.WithLog(err),
	)
}

func (a *Adapter) headers() map[string]string {
	headers := map[string]string{}
	if a.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.config.APIKey
	}
	if org, ok := a.config.Config["organization"]; ok {
		headers["OpenAI-Organization"] = org
	}
	return headers
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	var resp api.ChatResponse

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(a.config.BaseURL, "/"))

	body := *req
	body.Stream = false

	if err := httpclient.SendRequest(ctx, a.client, "POST", url, a.headers(), &body, &resp); err != nil {
		return nil, a.handleUpstreamError(err)
	}
	if resp.Error != nil {
		return nil, api.ProviderError(resp.Error.Message, resp.Error)
	}

	return &resp, nil
}

// GenerateImage calls the images endpoint (DALL-E and compatible hosts).
func (a *Adapter) GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error) {
	var resp api.ImageResponse

	url := fmt.Sprintf("%s/images/generations", strings.TrimRight(a.config.BaseURL, "/"))
	if err := httpclient.SendRequest(ctx, a.client, "POST", url, a.headers(), req, &resp); err != nil {
		return nil, a.handleUpstreamError(err)
	}
	return &resp, nil
}

func (a *Adapter) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models", strings.TrimRight(a.config.BaseURL, "/"))
	return httpclient.Ping(ctx, a.client, url, a.headers())
}
