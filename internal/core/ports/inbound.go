package ports

import (
	"context"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// MessageProcessor is the inbound contract for processing one email
// message end to end.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, messageID string) (domain.MessageReport, error)
}

// MailboxScanner is the inbound contract for batch polling a time window.
type MailboxScanner interface {
	ScanRecent(ctx context.Context, days int) (domain.ScanReport, error)
}

// CaseCollator owns the completion decision and the reopen operation.
type CaseCollator interface {
	Ingest(ctx context.Context, doc *domain.DocumentRecord) (domain.CollationOutcome, error)
	Reopen(ctx context.Context, key domain.CaseKey) error
}

// AnalysisRetrier re-dispatches analysis for completed cases whose
// analysis has not been produced yet.
type AnalysisRetrier interface {
	RetryPending(ctx context.Context) (analyzed int, failed int, err error)
}

// StatsReader serves processing statistics.
type StatsReader interface {
	Stats(ctx context.Context) (domain.PipelineStats, error)
}
