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

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/bootstrap"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/config"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/observability/logging"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/observability/metrics"
)

const (
	messageTimeout = 5 * time.Minute
	scanTimeout    = 30 * time.Minute
	watchInterval  = 12 * time.Hour
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	go serveMetrics(ctx, logger, cfg.WorkerMetricsPort, pipelineMetrics)

	if cfg.GmailPubSubTopic != "" {
		go renewWatch(ctx, app, logger, cfg.GmailPubSubTopic)
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIntakeEvents(ctx, func(handlerCtx context.Context, event domain.IntakeEvent) error {
		return handleEvent(handlerCtx, app, pipelineMetrics, logger, event)
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func handleEvent(ctx context.Context, app *bootstrap.App, m *metrics.PipelineMetrics, logger *slog.Logger, event domain.IntakeEvent) error {
	switch event.Kind {
	case domain.IntakeEventScan:
		scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()

		days := event.Days
		if days < 1 {
			days = app.Config.GmailScanDays
		}
		report, err := app.Scanner.ScanRecent(scanCtx, days)
		if err != nil {
			return err
		}
		logger.Info("scan_completed",
			"days", days,
			"total", report.Total,
			"success", report.Success,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
		for _, msg := range report.Messages {
			recordMessage(m, msg)
		}
		if analyzed, failed, err := app.Retrier.RetryPending(ctx); err != nil {
			logger.Warn("pending_retry_failed", "error", err)
		} else if analyzed > 0 || failed > 0 {
			logger.Info("pending_retry_completed", "analyzed", analyzed, "failed", failed)
		}
		return nil

	case domain.IntakeEventMessage:
		msgCtx, cancel := context.WithTimeout(ctx, messageTimeout)
		defer cancel()

		m.StartMessage()
		start := time.Now()
		report, err := app.Processor.ProcessMessage(msgCtx, event.MessageID)
		if err != nil {
			m.FinishMessage("worker", string(domain.IntakeFailed), time.Since(start))
			return err
		}
		m.FinishMessage("worker", string(report.Status), time.Since(start))
		recordMessage(m, report)
		return nil

	default:
		logger.Warn("unknown_intake_event", "kind", string(event.Kind))
		return nil
	}
}

func recordMessage(m *metrics.PipelineMetrics, report domain.MessageReport) {
	for i := 0; i < report.Completions; i++ {
		m.RecordCollationOutcome("worker", "completed")
	}
	m.RecordAnalyses("worker", report.AnalysesOK, report.AnalysesFailed)
}

func serveMetrics(ctx context.Context, logger *slog.Logger, port string, m *metrics.PipelineMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_metrics_listening", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker_metrics_failed", "error", err)
	}
}

// renewWatch keeps the Gmail push registration alive; registrations
// expire after roughly seven days.
func renewWatch(ctx context.Context, app *bootstrap.App, logger *slog.Logger, topic string) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		expiration, err := app.Mail.Watch(ctx, topic)
		if err != nil {
			logger.Warn("gmail_watch_failed", "error", err)
		} else {
			logger.Info("gmail_watch_registered", "expiration", expiration)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
