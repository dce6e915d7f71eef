package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/omni-router/internal/store"
)

const AppHeader = "X-App-Name"

// Identity middleware extracts X-App-Name from headers
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		appName := c.GetHeader(AppHeader)
		if appName != "" {
			ctx := context.WithValue(c.Request.Context(), store.ContextKeyAppName, appName)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// AppName returns the app name set by Identity, if any.
func AppName(c *gin.Context) string {
	name, _ := c.Request.Context().Value(store.ContextKeyAppName).(string)
	return name
}
