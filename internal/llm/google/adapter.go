package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/pkg/api"
)

const pn = string(llm.Google)

// roleModel is Gemini's name for the assistant role.
const roleModel = "model"

func init() {
	llm.Register(pn, NewAdapter)
}

type Adapter struct {
	config config.ProviderConfig
	client *http.Client
}

func NewAdapter(config config.ProviderConfig) (llm.Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
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
func (a *Adapter) Type() string { return pn }

type GeminiPart struct {
	Text string `json:"text,omitempty"`
}
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}
type GenerationConfig struct {
	CandidateCount  int     `json:"candidateCount,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}
type GeminiRequest struct {
	Contents          []GeminiContent   `json:"contents"`
	SystemInstruction *GeminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}
type GeminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
type GeminiResponse struct {
	Candidates    []GeminiCandidate `json:"candidates"`
	UsageMetadata *GeminiUsage      `json:"usageMetadata,omitempty"`
}

// Shape converts a chat request to the generateContent body.
func Shape(req *api.ChatRequest) GeminiRequest {
	gr := GeminiRequest{}

	var system []GeminiPart
	for _, m := range req.Messages {
		switch m.Role {
		case string(api.System):
			system = append(system, GeminiPart{Text: m.Content})
			continue
		case string(api.Assistant):
			gr.Contents = append(gr.Contents, GeminiContent{Role: roleModel, Parts: []GeminiPart{{Text: m.Content}}})
		default:
			gr.Contents = append(gr.Contents, GeminiContent{Role: string(api.User), Parts: []GeminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		gr.SystemInstruction = &GeminiContent{Parts: system}
	}

	if req.N > 1 || req.MaxTokens > 0 || req.Temperature > 0 || req.TopP > 0 {
		gc := &GenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		}
		if req.N > 1 {
			gc.CandidateCount = req.N
		}
		gr.GenerationConfig = gc
	}
	return gr
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(a.config.BaseURL, "/"),
		req.Model,
	)
	headers := map[string]string{"x-goog-api-key": a.config.APIKey}

	var gResp GeminiResponse
	if err := httpclient.SendRequest(ctx, a.client, "POST", url, headers, Shape(req), &gResp); err != nil {
		return nil, err
	}

	if len(gResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates from gemini")
	}

	resp := &api.ChatResponse{
		ID:      fmt.Sprintf("gemini-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
	}
	for i, c := range gResp.Candidates {
		var text strings.Builder
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		resp.Choices = append(resp.Choices, api.Choice{
			Index:        i,
			Message:      &api.ChatMessage{Role: string(api.Assistant), Content: text.String()},
			FinishReason: strings.ToLower(c.FinishReason),
		})
	}
	if u := gResp.UsageMetadata; u != nil {
		resp.Usage = &api.ResponseUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}

	return resp, nil
}

func (a *Adapter) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?pageSize=1", strings.TrimRight(a.config.BaseURL, "/"))
	return httpclient.Ping(ctx, a.client, url, map[string]string{"x-goog-api-key": a.config.APIKey})
}
