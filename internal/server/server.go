package server

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/server/middleware"
	"github.com/nulzo/omni-router/internal/server/validator"
	"github.com/nulzo/omni-router/internal/store"
)

const sweepInterval = time.Minute

type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	service   gateway.Service
	analytics analytics.Service
	repo      store.Repository
	limiter   *middleware.RateLimiter
}

func New(cfg *config.Config, logger *zap.Logger, service gateway.Service, analytics analytics.Service, repo store.Repository) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.InitValidator()

	engine := gin.New()

	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(logger))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}

	s := &Server{
		router:    engine,
		service:   service,
		analytics: analytics,
		repo:      repo,
		logger:    logger,
		config:    cfg,
		limiter:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
	}

	s.SetupRoutes()
	return s
}

// Handler returns the engine wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader, middleware.AppHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "X-Omni-Mode", "X-Omni-Top-Model"},
		AllowCredentials: false,
		MaxAge:           300,
	})(s.router)
}

// SweepLimiters drops idle per-client limiters until ctx is cancelled.
func (s *Server) SweepLimiters(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("swept idle rate limiters", zap.Int("count", n))
			}
		}
	}
}
