package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/config"
)

const redacted = "********"

type ConfigHandler struct {
	config *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{config: cfg}
}

// Get returns the running configuration with credentials masked.
//
// GET /v1/config
func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": Redact(h.config),
	})
}

// Redact returns a copy of cfg that is safe to expose.
func Redact(cfg *config.Config) config.Config {
	out := *cfg

	out.Server.APIKeys = make([]string, len(cfg.Server.APIKeys))
	for i := range out.Server.APIKeys {
		out.Server.APIKeys[i] = redacted
	}

	out.Providers = make([]config.ProviderConfig, len(cfg.Providers))
	for i, p := range cfg.Providers {
		p.APIKey = mask(p.APIKey)
		out.Providers[i] = p
	}

	out.Redis.Password = mask(cfg.Redis.Password)
	out.Embedding.APIKey = mask(cfg.Embedding.APIKey)
	out.Ranker.APIKey = mask(cfg.Ranker.APIKey)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
