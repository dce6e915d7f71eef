package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/gateway"
)

// Pinger is satisfied by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	startTime time.Time
	service   gateway.Service
	db        Pinger
}

func NewHealthHandler(service gateway.Service, db Pinger) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		service:   service,
		db:        db,
	}
}

// Health returns the health status and uptime of the API.
//
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks the database and every registered provider.
//
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	providers := h.service.Health(ctx)
	healthy := 0
	for _, v := range providers {
		if v == "ok" {
			healthy++
		}
	}
	checks["providers"] = providers
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
