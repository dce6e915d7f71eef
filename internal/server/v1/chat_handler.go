package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/server/validator"
	"github.com/nulzo/omni-router/pkg/api"
)

// Pipeline model names. Any other model id is sent to its provider unchanged.
const (
	ModelAuto     = "omni-auto"
	ModelSingle   = "omni-single"
	ModelEnsemble = "omni-ensemble"
)

// ChatHandler exposes the pipeline behind the OpenAI chat completions shape so
// existing SDKs can point at the router unchanged.
type ChatHandler struct {
	service gateway.Service
}

func NewChatHandler(service gateway.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// POST /v1/chat/completions
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	if req.Stream {
		_ = c.Error(api.BadRequestError("streaming is not supported by the router"))
		return
	}

	query := lastUserMessage(req.Messages)
	if query == "" {
		_ = c.Error(api.ValidationError(map[string]string{"messages": "must contain a non-empty user message"}))
		return
	}

	var mode api.Mode
	switch strings.ToLower(req.Model) {
	case ModelAuto:
	case ModelSingle:
		mode = api.ModeSingle
	case ModelEnsemble:
		mode = api.ModeEnsemble
	default:
		h.direct(c, &req)
		return
	}

	resp, err := h.service.Complete(c.Request.Context(), &api.CompletionRequest{
		Query:     query,
		Mode:      mode,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("X-Omni-Mode", string(resp.Mode))
	if resp.Decision != nil && len(resp.Decision.Models) > 0 {
		c.Header("X-Omni-Top-Model", resp.Decision.Models[0].ModelID)
	}

	c.JSON(http.StatusOK, api.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   req.Model,
		Choices: []api.Choice{{
			Index:        0,
			Message:      &api.ChatMessage{Role: string(api.Assistant), Content: resp.Answer},
			FinishReason: "stop",
		}},
	})
}

// direct forwards a request naming a registry model, skipping the pipeline.
func (h *ChatHandler) direct(c *gin.Context, req *api.ChatRequest) {
	resp, err := h.service.Chat(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("X-Omni-Mode", "direct")
	c.Header("X-Omni-Top-Model", req.Model)
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	c.JSON(http.StatusOK, resp)
}

func lastUserMessage(msgs []api.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == string(api.User) && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}
