package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/llm"
)

// HealthTimeout bounds the startup health check of each provider.
var HealthTimeout = 5 * time.Second

// BootstrapProviders initializes and registers all enabled providers from configuration.
func BootstrapProviders(ctx context.Context, service Service, providers []config.ProviderConfig, log *zap.Logger) int {
	registeredCount := 0
	validate := validator.New()

	for _, pCfg := range providers {
		if !pCfg.Enabled {
			continue
		}

		// Validate provider configuration individually
		if err := validate.Struct(&pCfg); err != nil {
			log.Warn(fmt.Sprintf("%s %s %s",
				cli.CrossMark(),
				cli.Style(pCfg.ID, cli.Bold),
				cli.Style("Skipping provider with invalid configuration", cli.Yellow),
			), zap.Error(err))
			continue
		}

		providerInstance, err := llm.New(pCfg)
		if err != nil {
			log.Error("Failed to initialize provider",
				zap.String("id", pCfg.ID),
				zap.String("type", pCfg.Type),
				zap.Error(err),
			)
			continue
		}

		// Perform Health Check
		healthCtx, cancel := context.WithTimeout(ctx, HealthTimeout)
		err = providerInstance.Health(healthCtx)
		cancel()
		if err != nil {
			log.Error("Provider unhealthy, skipping registration",
				zap.String("id", pCfg.ID),
				zap.Error(err))
			continue
		}

		if err := service.RegisterProvider(ctx, providerInstance); err != nil {
			log.Error("Failed to register provider", zap.String("id", pCfg.ID), zap.Error(err))
			continue
		}

		log.Info(fmt.Sprintf("%s %s", cli.CheckMark(), cli.Style(pCfg.ID, cli.Bold)), zap.String("type", pCfg.Type))
		registeredCount++
	}

	if registeredCount == 0 {
		log.Warn("No providers were registered. Completions will fail until one is configured.")
	}

	return registeredCount
}
