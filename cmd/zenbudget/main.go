package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"zenbudget/internal/backend"
	"zenbudget/internal/cache"
	"zenbudget/internal/cli"
	"zenbudget/internal/config"
	"zenbudget/internal/gateway"
	"zenbudget/internal/gateway/gemini"
	apphttp "zenbudget/internal/http"
	"zenbudget/internal/log"
	"zenbudget/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("zenbudget")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	advisor, gatewayHandler, closeAI := setupAI(ctx, cfg, logger)

	svc, err := services.NewBudgetService(ctx, services.Options{
		Store:     result.Store,
		Publisher: result.Publisher,
		Advisor:   advisor,
		CacheSize: cfg.ViewCacheSize,
		CacheTTL:  cfg.ViewCacheTTL,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create budget service", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:     svc,
		Store:       result.Store,
		Gateway:     gatewayHandler,
		CSVMaxBytes: cfg.CSVMaxBytes,
		Logger:      logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	caches := cache.NewManager()
	caches.Register(svc.Views())

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		closeAI()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		logger.Info("Starting zenbudget server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"ai_mode", cfg.AIMode(),
			"events", result.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return caches.Run(gctx, cfg.ViewCacheTTL)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	<-done
	logger.Info("Server stopped gracefully")
}

// setupAI picks the advisor backend: a remote gateway, an in-process Gemini
// client, or none. The returned handler serves /api/gemini when the gateway
// endpoint is enabled.
func setupAI(ctx context.Context, cfg *config.Config, logger *log.Logger) (services.Advisor, http.Handler, func()) {
	var (
		advisor services.Advisor
		local   *gateway.Service
		closeAI = func() {}
	)

	switch cfg.AIMode() {
	case "remote":
		advisor = gateway.NewAdvisor(gateway.NewClient(cfg.AIGatewayURL, cfg.AIGatewayTimeout), logger).WithTimeout(cfg.AIGatewayTimeout)
		logger.Info("Using remote AI gateway", "url", cfg.AIGatewayURL)
	case "local":
		gen, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModelPro, cfg.GeminiModelFlash)
		if err != nil {
			logger.Warn("Gemini client unavailable, AI features disabled", log.FieldError, err)
			break
		}
		local = gateway.NewService(gen)
		advisor = gateway.NewAdvisor(local, logger).WithTimeout(cfg.AIGatewayTimeout)
		closeAI = func() { _ = gen.Close() }
		logger.Info("Using in-process Gemini gateway",
			"pro_model", cfg.GeminiModelPro,
			"flash_model", cfg.GeminiModelFlash)
	default:
		logger.Info("AI features disabled - set GEMINI_API_KEY or AI_GATEWAY_URL")
	}

	var handler http.Handler
	if cfg.AIGatewayEnabled {
		// A nil service answers every call with the missing key error.
		handler = gateway.NewHandler(local, cfg.CSVMaxBytes)
	}
	return advisor, handler, closeAI
}
