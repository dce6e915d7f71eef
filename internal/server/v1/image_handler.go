package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/server/validator"
	"github.com/nulzo/omni-router/pkg/api"
)

type ImageHandler struct {
	service gateway.Service
}

func NewImageHandler(service gateway.Service) *ImageHandler {
	return &ImageHandler{service: service}
}

// POST /v1/images/generations
func (h *ImageHandler) Generate(c *gin.Context) {
	var req api.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	resp, err := h.service.GenerateImage(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("X-Omni-Top-Model", resp.Model)
	c.JSON(http.StatusOK, resp)
}
