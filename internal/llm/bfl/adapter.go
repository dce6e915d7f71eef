package bfl

import (
	"context"
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

const defaultPollInterval = 500 * time.Millisecond

func init() {
	llm.Register(string(llm.BFL), NewAdapter)
}

// Adapter generates images with Black Forest Labs' FLUX models. Jobs are
// submitted to /{model} and polled until they are ready.
type Adapter struct {
	config config.ProviderConfig
	client *http.Client
	poll   time.Duration
}

func NewAdapter(config config.ProviderConfig) (llm.Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.bfl.ai/v1"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		// generation plus polling
		timeout = 300 * time.Second
	}

	poll := defaultPollInterval
	if raw, ok := config.Config["poll_interval"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("bfl: invalid poll_interval %q", raw)
		}
		poll = d
	}

	return &Adapter{
		config: config,
		client: &http.Client{Timeout: timeout},
		poll:   poll,
	}, nil
}

func (a *Adapter) Name() string { return a.config.ID }
func (a *Adapter) Type() string { return string(llm.BFL) }

type generationRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type generationResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type pollingResponse struct {
	Status string `json:"status"` // Ready, Pending, Processing, Error, Failed
	Result *struct {
		Sample string `json:"sample"`
	} `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"x-key": a.config.APIKey}
}

// GenerateImage submits one job per requested image and waits for each sample url.
func (a *Adapter) GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error) {
	n := req.N
	if n <= 0 {
		n = 1
	}
	width, height := req.Dimensions()

	resp := &api.ImageResponse{Created: time.Now().Unix(), Model: req.Model}
	for i := 0; i < n; i++ {
		job, err := a.submit(ctx, req.Model, generationRequest{Prompt: req.Prompt, Width: width, Height: height})
		if err != nil {
			return nil, err
		}
		if resp.ID == "" {
			resp.ID = job.ID
		}

		url, err := a.wait(ctx, job)
		if err != nil {
			return nil, err
		}
		resp.Data = append(resp.Data, api.ImageData{URL: url})
	}
	return resp, nil
}

func (a *Adapter) submit(ctx context.Context, model string, body generationRequest) (*generationResponse, error) {
	var job generationResponse
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(a.config.BaseURL, "/"), model)
	if err := httpclient.SendRequest(ctx, a.client, http.MethodPost, endpoint, a.headers(), body, &job); err != nil {
		return nil, a.handleUpstreamError(err)
	}
	if job.PollingURL == "" {
		return nil, fmt.Errorf("bfl: job %s has no polling url", job.ID)
	}
	return &job, nil
}

func (a *Adapter) wait(ctx context.Context, job *generationResponse) (string, error) {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var res pollingResponse
		if err := httpclient.SendRequest(ctx, a.client, http.MethodGet, job.PollingURL, a.headers(), nil, &res); err != nil {
			return "", a.handleUpstreamError(err)
		}

		switch res.Status {
		case "Ready":
			if res.Result == nil || res.Result.Sample == "" {
				return "", fmt.Errorf("bfl: job %s is ready without a sample", job.ID)
			}
			return res.Result.Sample, nil
		case "Error", "Failed", "Content Moderated", "Request Moderated":
			return "", fmt.Errorf("bfl: job %s %s: %s", job.ID, strings.ToLower(res.Status), res.Message)
		}
	}
}

// Chat draws the last user message and answers with the image url. FLUX has no
// text model, so this only serves clients that talk to every model through chat.
func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == string(api.User) {
			prompt = req.Messages[i].Content
			break
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, api.BadRequestError("no prompt found in messages")
	}

	img, err := a.GenerateImage(ctx, &api.ImageRequest{Model: req.Model, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	return &api.ChatResponse{
		ID:      img.ID,
		Object:  "chat.completion",
		Model:   req.Model,
		Created: img.Created,
		Choices: []api.Choice{{
			Message:      &api.ChatMessage{Role: string(api.Assistant), Content: img.Data[0].URL},
			FinishReason: "stop",
		}},
	}, nil
}

func (a *Adapter) handleUpstreamError(err error) error {
	var upstreamErr *httpclient.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return err
	}
	return api.NewError(
		upstreamErr.StatusCode,
		"Upstream Provider Error",
		string(upstreamErr.Body),
		api.WithExtension("provider", a.config.ID),
		api.WithLog(err),
	)
}

func (a *Adapter) Health(ctx context.Context) error {
	if a.config.APIKey == "" {
		return fmt.Errorf("missing API key")
	}
	return nil
}
