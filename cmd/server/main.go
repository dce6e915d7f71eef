package main

import (
	"context"
	"errors"
	_ "expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/omni-router/cmd"
	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/internal/app"
	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/platform/logger"
	"github.com/nulzo/omni-router/internal/platform/otel"
	"github.com/nulzo/omni-router/internal/server"
	"github.com/nulzo/omni-router/internal/store/sqlite"
)

const (
	debugAddr       = "127.0.0.1:6060"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.CrossMark(), err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := logger.Initialize(logger.DefaultConfig(cfg.Server.Env))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(cli.Gradient("omni-router", cli.BrandBlue, cli.BrandPurple, 0.5),
		zap.String("version", cmd.AppVersion),
		zap.String("env", cfg.Server.Env),
	)
	go func() {
		if latest, err := cmd.CheckForUpdates(ctx); err == nil && latest != "" {
			log.Warn("A newer release is available", zap.String("current", cmd.AppVersion), zap.String("latest", latest))
		}
	}()

	shutdownTracer, err := otel.InitTracer(cfg.Tracing, cmd.AppVersion, log, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		_ = repo.Close()
	}()

	ingestor := analytics.NewIngestor(log, repo)
	ingestor.Start(ctx)
	defer ingestor.Stop()

	embeddings, closeCache := app.NewCache(ctx, cfg.Redis, log)
	defer func() {
		_ = closeCache()
	}()

	service, healthy, err := app.NewGateway(ctx, cfg, log, app.Deps{Ingestor: ingestor, Cache: embeddings})
	if err != nil {
		return err
	}
	if healthy == 0 {
		log.Warn("No healthy providers registered; routing works but completions will fail")
	}

	srv := server.New(cfg, log, service, analytics.NewService(repo), repo)
	go srv.SweepLimiters(ctx)

	if cfg.Server.Env != "production" {
		// expvar and pprof register on the default mux
		go func() {
			if err := http.ListenAndServe(debugAddr, http.DefaultServeMux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Debug("debug listener stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("%s Listening", cli.Arrow()), zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
