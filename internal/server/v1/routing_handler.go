package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/server/validator"
	"github.com/nulzo/omni-router/pkg/api"
)

type RoutingHandler struct {
	service gateway.Service
}

func NewRoutingHandler(service gateway.Service) *RoutingHandler {
	return &RoutingHandler{service: service}
}

// Route scores every registered model for the query.
//
// POST /v1/route
func (h *RoutingHandler) Route(c *gin.Context) {
	var req api.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	decision, err := h.service.Route(c.Request.Context(), req.Query, req.Task)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// Mode reports whether the query would be answered by one model or an ensemble.
//
// POST /v1/mode
func (h *RoutingHandler) Mode(c *gin.Context) {
	var req api.ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	mode, err := h.service.DecideMode(c.Request.Context(), req.Query)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.ModeResponse{Mode: mode})
}

// Rank orders candidate answers by relevance to the prompt.
//
// POST /v1/rank
func (h *RoutingHandler) Rank(c *gin.Context) {
	var req api.RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	ranked, err := h.service.Rank(c.Request.Context(), req.Prompt, req.Candidates)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.RankResponse{Object: "list", Data: ranked})
}

// Complete runs the full pipeline and returns the answer with its provenance.
//
// POST /v1/completions
func (h *RoutingHandler) Complete(c *gin.Context) {
	var req api.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	resp, err := h.service.Complete(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
