package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/config"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/secrets"
)

const readHeaderTimeout = 10 * time.Second

func runServe(ctx context.Context, opts *rootOptions) error {
	envValues, err := config.EnvironmentValues(config.WithEnvFile(opts.envFile))
	if err != nil {
		return err
	}

	baseLogger, err := newLogger(envValues)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("web")

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(envValues["SECRETS_PROJECT_ID"]),
		secrets.WithFallbackFile(envValues["SECRETS_FALLBACK_FILE"]),
	)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithEnvFile(opts.envFile),
		config.WithSecretResolver(fetcher),
	)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Error("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	metrics := observability.NewMetrics()
	app, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	defer stopLimiter()
	go app.limiter.Run(limiterCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
			zap.String("backend", cfg.Backend.URL),
			zap.String("auth_provider", app.provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(envValues map[string]string) (*zap.Logger, error) {
	level := envValues["LOG_LEVEL"]
	if envValues["LOG_FORMAT"] == "console" {
		return observability.NewDevelopmentLogger(level)
	}
	return observability.NewLogger(level)
}
