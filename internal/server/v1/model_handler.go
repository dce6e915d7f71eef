package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/pkg/api"
)

type ModelHandler struct {
	service gateway.Service
}

func NewModelHandler(service gateway.Service) *ModelHandler {
	return &ModelHandler{service: service}
}

// ListModels returns the chat and image catalogues, optionally filtered by
// provider, id or capability.
//
// GET /v1/models?provider=openai&id=gpt&capability=chat
func (h *ModelHandler) ListModels(c *gin.Context) {
	filter := api.ModelFilter{
		Provider:   c.Query("provider"),
		ID:         c.Query("id"),
		Capability: c.Query("capability"),
	}
	switch filter.Capability {
	case "", api.CapabilityChat, api.CapabilityImage:
	default:
		_ = c.Error(api.BadRequestError("capability must be 'chat' or 'image'"))
		return
	}

	models, err := h.service.ListModels(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to list models", api.WithLog(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   models,
	})
}
