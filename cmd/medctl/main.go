package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/bootstrap"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/config"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/usecase"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/export"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/repository/postgres"
)

func main() {
	validate := flag.Bool("validate", false, "validate configuration and exit")
	deep := flag.Bool("deep", false, "with -validate, also connect to Postgres, NATS and Gmail")
	scanDays := flag.Int("scan-days", 0, "scan the mailbox for messages from the last N days")
	messageID := flag.String("message", "", "process a single message by Gmail message ID")
	stats := flag.Bool("stats", false, "print pipeline stats as JSON")
	exportPath := flag.String("export", "", "write pipeline stats to an XLSX file (with -stats)")
	pending := flag.Bool("retry-pending", false, "re-run analysis for completed cases without results")
	reopen := flag.Bool("reopen", false, "reopen a completed case for re-collation")
	requestID := flag.String("request-id", "", "case request ID (with -reopen)")
	patient := flag.String("patient", "", "case patient name (with -reopen)")
	testType := flag.String("test", "", "case test type (with -reopen)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *validate:
		err = runValidate(ctx, cfg, *deep)
	case *stats:
		err = runStats(ctx, cfg, *exportPath)
	case *reopen:
		err = runReopen(ctx, cfg, *requestID, *patient, *testType)
	case *scanDays > 0:
		err = runScan(ctx, cfg, *scanDays)
	case *messageID != "":
		err = runMessage(ctx, cfg, *messageID)
	case *pending:
		err = runRetryPending(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "medctl: %v\n", err)
		os.Exit(1)
	}
}

func runValidate(ctx context.Context, cfg config.Config, deep bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := config.LoadPolicy(cfg.PolicyFile, cfg.PolicyMinDocuments); err != nil {
		return fmt.Errorf("completeness policy: %w", err)
	}
	if _, err := os.Stat(cfg.GmailCredentialsFile); err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}
	if _, err := os.Stat(cfg.GmailTokenFile); err != nil {
		return fmt.Errorf("gmail token: %w", err)
	}
	if deep {
		// Full wiring: Postgres ping, NATS connect, Gmail client build.
		app, err := bootstrap.New(ctx, cfg, nil)
		if err != nil {
			return err
		}
		app.Close()
	}
	fmt.Println("configuration ok")
	return nil
}

// openStore wires just the database for commands that never touch
// Gmail, NATS or the LLM.
func openStore(ctx context.Context, cfg config.Config) (*postgres.Store, func(), error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, func() { _ = db.Close() }, nil
}

func runStats(ctx context.Context, cfg config.Config, exportPath string) error {
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if exportPath != "" {
		svc := export.NewService(store, nil)
		data, err := svc.ExportStatsXLSX(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("stats written to %s\n", exportPath)
		return nil
	}

	pipelineStats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pipelineStats)
}

func runReopen(ctx context.Context, cfg config.Config, requestID, patient, testType string) error {
	if requestID == "" || patient == "" {
		return fmt.Errorf("-reopen requires -request-id and -patient")
	}
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	policy, err := config.LoadPolicy(cfg.PolicyFile, cfg.PolicyMinDocuments)
	if err != nil {
		return fmt.Errorf("load completeness policy: %w", err)
	}
	collator := usecase.NewCollateUseCase(store, policy)

	key := domain.NewCaseKey(requestID, patient, testType)
	if err := collator.Reopen(ctx, key); err != nil {
		return err
	}
	fmt.Printf("case %s reopened\n", key.String())
	return nil
}

func runScan(ctx context.Context, cfg config.Config, days int) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	start := time.Now()
	report, err := app.Scanner.ScanRecent(ctx, days)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d messages in %s: %d success, %d skipped, %d failed\n",
		report.Total, time.Since(start).Round(time.Millisecond),
		report.Success, report.Skipped, report.Failed)
	return nil
}

func runMessage(ctx context.Context, cfg config.Config, messageID string) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Processor.ProcessMessage(ctx, messageID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runRetryPending(ctx context.Context, cfg config.Config) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	analyzed, failed, err := app.Retrier.RetryPending(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("retried pending analyses: %d analyzed, %d failed\n", analyzed, failed)
	return nil
}

func newApp(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
	return bootstrap.New(ctx, cfg, nil)
}
