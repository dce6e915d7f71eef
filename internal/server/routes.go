package server

import (
	"github.com/nulzo/omni-router/internal/server/middleware"
	v1 "github.com/nulzo/omni-router/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.ErrorHandler(s.logger))
	s.router.Use(middleware.Identity())

	// Public
	healthHandler := v1.NewHealthHandler(s.service, s.repo)
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/ready", healthHandler.Ready)

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.repo, s.config.Server.APIKeys, s.config.Server.AllowAnonymousApps, s.logger))
	api.Use(s.limiter.Middleware())
	{
		routing := v1.NewRoutingHandler(s.service)
		api.POST("/route", routing.Route)
		api.POST("/mode", routing.Mode)
		api.POST("/rank", routing.Rank)
		api.POST("/completions", routing.Complete)

		chat := v1.NewChatHandler(s.service)
		api.POST("/chat/completions", chat.CreateCompletion)

		images := v1.NewImageHandler(s.service)
		api.POST("/images/generations", images.Generate)

		models := v1.NewModelHandler(s.service)
		api.GET("/models", models.ListModels)

		analytics := v1.NewAnalyticsHandler(s.analytics)
		api.GET("/analytics/usage", analytics.GetUsage)
		api.GET("/routes/:id", analytics.GetRoute)

		cfg := v1.NewConfigHandler(s.config)
		api.GET("/config", cfg.Get)
	}
}
