package ports

import (
	"context"
	"io"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// DocumentStore persists document records, completion claims, analysis
// results and intake history.
type DocumentStore interface {
	// SaveDocument is idempotent on (source_message_id, source_filename);
	// created reports whether this call inserted a new record.
	SaveDocument(ctx context.Context, doc *domain.DocumentRecord) (created bool, err error)
	// FindByCaseKey returns the case's documents ordered by received_at
	// ascending. A key with an empty TestType selects every test type for
	// the request+patient pair (the cross-type collation scope).
	FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]domain.DocumentRecord, error)
	// UpdateCaseStatus follows the same scope rule as FindByCaseKey.
	UpdateCaseStatus(ctx context.Context, key domain.CaseKey, status domain.DocumentStatus) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error

	// ClaimCompletion inserts the completion claim for the key if absent
	// and reports whether this call won the claim. At most one caller wins
	// per completion event, across processes.
	ClaimCompletion(ctx context.Context, key domain.CaseKey) (won bool, err error)
	// ReleaseCompletion removes the claim so a later evaluation may fire a
	// new completion event.
	ReleaseCompletion(ctx context.Context, key domain.CaseKey) error
	// ListPendingAnalyses returns keys whose completion claim is held but
	// whose analysis has not been produced since the claim.
	ListPendingAnalyses(ctx context.Context) ([]domain.CaseKey, error)

	InsertAnalysis(ctx context.Context, result *domain.AnalysisResult) error

	RecordIntake(ctx context.Context, record *domain.IntakeRecord) error
	IsMessageProcessed(ctx context.Context, messageID string) (bool, error)
	ListRecentIntake(ctx context.Context, limit int) ([]domain.IntakeRecord, error)
	Stats(ctx context.Context) (domain.PipelineStats, error)
}

// BlobStorage stores raw PDF attachment bytes.
type BlobStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MailSource is the external mail provider.
type MailSource interface {
	// Search returns message IDs matching the medical-mail query within
	// the last `days` days.
	Search(ctx context.Context, days int) ([]string, error)
	Fetch(ctx context.Context, messageID string) (*domain.MailMessage, error)
	MarkRead(ctx context.Context, messageID string) error
	// Watch registers push notifications for the inbox on the given topic.
	Watch(ctx context.Context, topic string) (expiration time.Time, err error)
}

// Extraction is the result of pulling text out of one attachment.
type Extraction struct {
	Text          string
	Pages         int
	LikelyMedical bool
}

// AttachmentExtractor extracts plain text from PDF attachment bytes.
type AttachmentExtractor interface {
	ExtractText(ctx context.Context, data []byte) (Extraction, error)
}

// CaseAnalyzer invokes the LLM over an ordered case snapshot. Failures
// are wrapped as domain.ErrAnalysisUnavailable and must never be treated
// as fatal to ingestion.
type CaseAnalyzer interface {
	Analyze(ctx context.Context, key domain.CaseKey, docs []domain.DocumentRecord) (*domain.AnalysisResult, error)
}

// IntakeQueue decouples the webhook surface from processing.
type IntakeQueue interface {
	PublishIntakeEvent(ctx context.Context, event domain.IntakeEvent) error
	SubscribeIntakeEvents(ctx context.Context, handler func(context.Context, domain.IntakeEvent) error) error
}
