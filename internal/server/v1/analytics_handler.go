package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/pkg/api"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetUsage summarizes pipeline runs per day and per selected model.
//
// GET /v1/analytics/usage?days=7
func (h *AnalyticsHandler) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 0 {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter"))
		return
	}

	usage, err := h.service.GetUsageOverview(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

// GetRoute returns the stored record of one pipeline run.
//
// GET /v1/routes/:id
func (h *AnalyticsHandler) GetRoute(c *gin.Context) {
	route, err := h.service.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, route)
}
