package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/config"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/usecase"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/export"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/extractor/pdfattach"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/llm/openaichat"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/mail/gmail"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/queue/nats"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/repository/postgres"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/resilience"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store ports.DocumentStore
	Queue ports.IntakeQueue
	Mail  ports.MailSource

	Processor ports.MessageProcessor
	Scanner   ports.MailboxScanner
	Collator  ports.CaseCollator
	Retrier   ports.AnalysisRetrier
	Exporter  *export.Service

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init intake queue: %w", err)
	}

	mail, err := gmail.New(ctx, cfg.GmailCredentialsFile, cfg.GmailTokenFile, cfg.GmailUser)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init gmail source: %w", err)
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile, cfg.PolicyMinDocuments)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load completeness policy: %w", err)
	}

	extractor := pdfattach.New(cfg.MaxPDFSizeBytes)
	analyzer := openaichat.New(
		cfg.LLMBaseURL,
		cfg.LLMAPIKey,
		cfg.LLMModel,
		cfg.LLMMaxTokens,
		time.Duration(cfg.LLMTimeoutSeconds)*time.Second,
		executor,
	)

	collator := usecase.NewCollateUseCase(store, policy)
	processor := usecase.NewProcessMessageUseCase(mail, extractor, blobs, store, collator, analyzer)
	scanner := usecase.NewScanUseCase(mail, processor)
	retrier := usecase.NewRetryPendingUseCase(store, analyzer)

	return &App{
		Config: cfg,
		Logger: logger,

		Store: store,
		Queue: queue,
		Mail:  mail,

		Processor: processor,
		Scanner:   scanner,
		Collator:  collator,
		Retrier:   retrier,
		Exporter:  export.NewService(store, logger),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
