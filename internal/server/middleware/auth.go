package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/pkg/api"
)

// HashKey is how API keys are stored: hex sha256 of the raw token.
func HashKey(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Auth checks for a valid Bearer token against the static keys, then the database.
// With allowAnonymousApps, requests carrying only X-App-Name (see Identity) pass
// as anonymous.
func Auth(repo store.Repository, staticKeys []string, allowAnonymousApps bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			if allowAnonymousApps && AppName(c) != "" {
				c.Next()
				return
			}
			abortProblem(c, api.UnauthorizedError("Missing Authorization header"))
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			abortProblem(c, api.UnauthorizedError("Invalid Authorization header format"))
			return
		}

		for _, k := range staticKeys {
			if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
				c.Next()
				return
			}
		}

		if repo == nil {
			abortProblem(c, api.UnauthorizedError("Invalid API Key"))
			return
		}

		key, err := repo.APIKeys().GetByHash(c.Request.Context(), HashKey(token))
		if err != nil || key.Expired(time.Now()) {
			abortProblem(c, api.UnauthorizedError("Invalid API Key"))
			return
		}

		// Inject key into context for downstream use (logging)
		ctx := context.WithValue(c.Request.Context(), store.ContextKeyAPIKey, key)
		c.Request = c.Request.WithContext(ctx)

		// Update last used timestamp (async)
		go func() {
			if err := repo.APIKeys().UpdateUsage(context.Background(), key.ID); err != nil {
				logger.Debug("Failed to stamp key usage", zap.String("key_id", key.ID), zap.Error(err))
			}
		}()

		c.Next()
	}
}

func abortProblem(c *gin.Context, p *api.Problem) {
	p.Instance = c.Request.URL.Path
	c.AbortWithStatusJSON(p.Status, p)
}
