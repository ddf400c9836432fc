package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/subject"
)

// ProcessMessageUseCase runs one email through the full pipeline:
// fetch -> parse subject -> extract attachment text -> store blob and
// record -> collate -> dispatch analysis on a completion event. Each
// message is an independent unit of work; a failure is recorded in the
// intake history and never aborts the surrounding batch.
type ProcessMessageUseCase struct {
	mail      ports.MailSource
	extractor ports.AttachmentExtractor
	blobs     ports.BlobStorage
	store     ports.DocumentStore
	collator  ports.CaseCollator
	analyzer  ports.CaseAnalyzer
}

func NewProcessMessageUseCase(
	mail ports.MailSource,
	extractor ports.AttachmentExtractor,
	blobs ports.BlobStorage,
	store ports.DocumentStore,
	collator ports.CaseCollator,
	analyzer ports.CaseAnalyzer,
) *ProcessMessageUseCase {
	return &ProcessMessageUseCase{
		mail:      mail,
		extractor: extractor,
		blobs:     blobs,
		store:     store,
		collator:  collator,
		analyzer:  analyzer,
	}
}

func (uc *ProcessMessageUseCase) ProcessMessage(ctx context.Context, messageID string) (domain.MessageReport, error) {
	report := domain.MessageReport{MessageID: messageID}

	processed, err := uc.store.IsMessageProcessed(ctx, messageID)
	if err != nil {
		return report, fmt.Errorf("check message history: %w", err)
	}
	if processed {
		report.Status = domain.IntakeSkipped
		return report, nil
	}

	msg, err := uc.mail.Fetch(ctx, messageID)
	if err != nil {
		return report, fmt.Errorf("fetch message: %w", err)
	}

	parsed, err := subject.Parse(msg.Subject)
	if err != nil {
		report.Status = domain.IntakeFailed
		report.ParseFailed = true
		report.Error = err.Error()
		return report, uc.recordIntake(ctx, msg, domain.CaseKey{}, false, domain.IntakeFailed, report.Error)
	}
	key := parsed.CaseKey()

	if len(msg.Attachments) == 0 {
		report.Status = domain.IntakeFailed
		report.Error = "no pdf attachments found"
		return report, uc.recordIntake(ctx, msg, key, false, domain.IntakeFailed, report.Error)
	}

	var firstErr string
	for _, att := range msg.Attachments {
		if err := uc.processAttachment(ctx, msg, key, att, &report); err != nil {
			if firstErr == "" {
				firstErr = err.Error()
			}
		}
	}

	if report.Documents == 0 && firstErr != "" {
		report.Status = domain.IntakeFailed
		report.Error = firstErr
		return report, uc.recordIntake(ctx, msg, key, true, domain.IntakeFailed, firstErr)
	}

	// Best effort; an unread flag left behind only causes a skipped
	// duplicate on the next scan.
	_ = uc.mail.MarkRead(ctx, messageID)

	report.Status = domain.IntakeSucceeded
	return report, uc.recordIntake(ctx, msg, key, true, domain.IntakeSucceeded, "")
}

func (uc *ProcessMessageUseCase) processAttachment(
	ctx context.Context,
	msg *domain.MailMessage,
	key domain.CaseKey,
	att domain.MailAttachment,
	report *domain.MessageReport,
) error {
	extraction, err := uc.extractor.ExtractText(ctx, att.Data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", att.Filename, err)
	}

	docID := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", docID, sanitizeFilename(att.Filename))
	if err := uc.blobs.Save(ctx, storageKey, bytes.NewReader(att.Data)); err != nil {
		return fmt.Errorf("store attachment %s: %w", att.Filename, err)
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	doc := &domain.DocumentRecord{
		ID:              docID,
		Case:            key,
		ReceivedAt:      receivedAt,
		RawText:         extraction.Text,
		SourceMessageID: msg.ID,
		SourceFilename:  att.Filename,
		StoragePath:     storageKey,
		Status:          domain.StatusNew,
	}

	outcome, err := uc.collator.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("collate %s: %w", att.Filename, err)
	}
	if outcome.State != domain.CollationDuplicate {
		report.Documents++
	}

	if outcome.State == domain.CollationJustCompleted {
		report.Completions++
		if uc.dispatchAnalysis(ctx, outcome.Snapshot) {
			report.AnalysesOK++
		} else {
			report.AnalysesFailed++
		}
	}
	return nil
}

// dispatchAnalysis fires the single analysis for a completion event.
// Failure is non-fatal to ingestion: the documents are marked failed, the
// completion claim stays held, and the case is retryable via the pending
// pass or an explicit reopen.
func (uc *ProcessMessageUseCase) dispatchAnalysis(ctx context.Context, snapshot *domain.Case) bool {
	setCaseStatus(ctx, uc.store, snapshot.Key, domain.StatusCollated)

	result, err := uc.analyzer.Analyze(ctx, snapshot.Key, snapshot.Documents)
	if err != nil {
		setCaseStatus(ctx, uc.store, snapshot.Key, domain.StatusFailed)
		return false
	}

	if err := uc.store.InsertAnalysis(ctx, result); err != nil {
		setCaseStatus(ctx, uc.store, snapshot.Key, domain.StatusFailed)
		return false
	}
	setCaseStatus(ctx, uc.store, snapshot.Key, domain.StatusAnalyzed)
	return true
}

// setCaseStatus records a best-effort status transition. A failed write
// never fails the surrounding dispatch, but it must leave a trace: the
// documents would otherwise sit in a stale state with nothing to go on.
func setCaseStatus(ctx context.Context, store ports.DocumentStore, key domain.CaseKey, status domain.DocumentStatus) {
	if err := store.UpdateCaseStatus(ctx, key, status); err != nil {
		slog.Warn("case_status_update_failed",
			"case_key", key.String(),
			"status", string(status),
			"error", err,
		)
	}
}

func (uc *ProcessMessageUseCase) recordIntake(
	ctx context.Context,
	msg *domain.MailMessage,
	key domain.CaseKey,
	hasPDF bool,
	status domain.IntakeStatus,
	errMessage string,
) error {
	record := &domain.IntakeRecord{
		MessageID:   msg.ID,
		Subject:     msg.Subject,
		Sender:      msg.Sender,
		Case:        key,
		HasPDF:      hasPDF,
		Status:      status,
		Error:       errMessage,
		ProcessedAt: time.Now().UTC(),
	}
	if err := uc.store.RecordIntake(ctx, record); err != nil {
		return fmt.Errorf("record intake history: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "attachment.pdf"
	}
	return base
}
