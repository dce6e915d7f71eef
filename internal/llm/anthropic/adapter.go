package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/llm/processing"
	"github.com/nulzo/omni-router/pkg/api"
)

const defaultVersion = "2023-06-01"

func init() {
	llm.Register(string(llm.Anthropic), NewAdapter)
}

type Adapter struct {
	config config.ProviderConfig
	client *http.Client
}

func NewAdapter(config config.ProviderConfig) (llm.Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
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

func (a *Adapter) Name() string { return a.config.ID }
func (a *Adapter) Type() string { return string(llm.Anthropic) }

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}
type Response struct {
	ID         string    `json:"id"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason"`
	Usage      Usage     `json:"usage"`
}
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// toAnthropicReq lifts system messages into the top-level system prompt.
func toAnthropicReq(req *api.ChatRequest) Request {
	ar := Request{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if ar.MaxTokens == 0 {
		ar.MaxTokens = 4096
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == string(api.System) {
			system = append(system, m.Content)
			continue
		}
		ar.Messages = append(ar.Messages, Message{Role: m.Role, Content: m.Content})
	}
	ar.System = strings.Join(system, "\n")
	return ar
}

func (a *Adapter) headers() map[string]string {
	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": defaultVersion,
	}
	if v, ok := a.config.Config["version"]; ok {
		headers["anthropic-version"] = v
	}
	return headers
}

// Chat returns a single choice; the messages API has no n parameter.
func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	var anthroResp Response

	url := fmt.Sprintf("%s/messages", strings.TrimRight(a.config.BaseURL, "/"))
	if err := httpclient.SendRequest(ctx, a.client, "POST", url, a.headers(), toAnthropicReq(req), &anthroResp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range anthroResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	content, _ := processing.ExtractThinking(text.String())

	return &api.ChatResponse{
		ID:      anthroResp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   anthroResp.Model,
		Choices: []api.Choice{{
			Index: 0,
			Message: &api.ChatMessage{
				Role:    string(api.Assistant),
				Content: content,
			},
			FinishReason: anthroResp.StopReason,
		}},
		Usage: &api.ResponseUsage{
			PromptTokens:     anthroResp.Usage.InputTokens,
			CompletionTokens: anthroResp.Usage.OutputTokens,
			TotalTokens:      anthroResp.Usage.InputTokens + anthroResp.Usage.OutputTokens,
		},
	}, nil
}

func (a *Adapter) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?limit=1", strings.TrimRight(a.config.BaseURL, "/"))
	return httpclient.Ping(ctx, a.client, url, a.headers())
}
