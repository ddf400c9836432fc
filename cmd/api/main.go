package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/adapters/http"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/bootstrap"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/config"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/observability/logging"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Processor,
		app.Scanner,
		app.Collator,
		app.Retrier,
		app.Store,
		app.Queue,
		httpadapter.Options{
			WebhookSecret:  cfg.WebhookSecret,
			ScanDays:       cfg.GmailScanDays,
			Metrics:        metrics.NewHTTPServerMetrics("api"),
			RateLimitRPS:   cfg.HTTPRateLimitRPS,
			RateLimitBurst: cfg.HTTPRateLimitBurst,
			MaxInFlight:    cfg.HTTPMaxInFlight,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
