package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

func newProcessFixture(policy domain.CollationPolicy) (*ProcessMessageUseCase, *fakeStore, *fakeMail, *fakeAnalyzer, *fakeBlobs) {
	store := newFakeStore()
	mail := &fakeMail{messages: make(map[string]*domain.MailMessage)}
	analyzer := &fakeAnalyzer{}
	blobs := &fakeBlobs{}
	collator := NewCollateUseCase(store, policy)
	uc := NewProcessMessageUseCase(mail, &fakeExtractor{}, blobs, store, collator, analyzer)
	return uc, store, mail, analyzer, blobs
}

func mailMsg(id, subjectLine string, filenames ...string) *domain.MailMessage {
	msg := &domain.MailMessage{
		ID:         id,
		Subject:    subjectLine,
		Sender:     "clinic@example.com",
		ReceivedAt: time.Now().UTC(),
	}
	for _, name := range filenames {
		msg.Attachments = append(msg.Attachments, domain.MailAttachment{Filename: name, Data: []byte(name)})
	}
	return msg
}

func TestProcessMessageCompletesAndAnalyzes(t *testing.T) {
	uc, store, mail, analyzer, blobs := newProcessFixture(domain.MinDocumentsPolicy(2))
	mail.messages["m1"] = mailMsg("m1", "REQ12345 - Blood Panel - Patient: John Smith", "first.pdf")
	mail.messages["m2"] = mailMsg("m2", "REQ12345 - Blood Panel - Patient: John Smith", "second.pdf")

	r1, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process m1: %v", err)
	}
	if r1.Status != domain.IntakeSucceeded || r1.Documents != 1 || r1.Completions != 0 {
		t.Fatalf("report m1 = %+v", r1)
	}

	r2, err := uc.ProcessMessage(context.Background(), "m2")
	if err != nil {
		t.Fatalf("process m2: %v", err)
	}
	if r2.Completions != 1 || r2.AnalysesOK != 1 || r2.AnalysesFailed != 0 {
		t.Fatalf("report m2 = %+v", r2)
	}
	if analyzer.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", analyzer.calls)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("stored analyses = %d, want 1", len(store.analyses))
	}
	if len(blobs.saved) != 2 {
		t.Fatalf("saved blobs = %d, want 2", len(blobs.saved))
	}
	if len(mail.read) != 2 {
		t.Fatalf("messages marked read = %d, want 2", len(mail.read))
	}

	for _, doc := range store.docs {
		if doc.Status != domain.StatusAnalyzed {
			t.Fatalf("document %s status = %s, want %s", doc.ID, doc.Status, domain.StatusAnalyzed)
		}
	}
}

func TestProcessMessageParseFailureRecorded(t *testing.T) {
	uc, store, mail, analyzer, _ := newProcessFixture(domain.MinDocumentsPolicy(1))
	mail.messages["m1"] = mailMsg("m1", "Lunch on Friday?", "menu.pdf")

	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Status != domain.IntakeFailed || !report.ParseFailed {
		t.Fatalf("report = %+v, want failed with parse_failed", report)
	}
	if analyzer.calls != 0 {
		t.Fatal("analyzer invoked for unparseable subject")
	}
	if len(store.intake) != 1 || store.intake[0].Status != domain.IntakeFailed {
		t.Fatalf("intake history = %+v, want one failed entry", store.intake)
	}
}

func TestProcessMessageSkipsAlreadyProcessed(t *testing.T) {
	uc, store, mail, _, _ := newProcessFixture(domain.MinDocumentsPolicy(1))
	mail.messages["m1"] = mailMsg("m1", "Medical Records | Request ID: REQ999 | Test: X-Ray | Patient: Jane Doe", "scan.pdf")

	if _, err := uc.ProcessMessage(context.Background(), "m1"); err != nil {
		t.Fatalf("first process: %v", err)
	}
	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if report.Status != domain.IntakeSkipped {
		t.Fatalf("status = %s, want %s", report.Status, domain.IntakeSkipped)
	}
	if len(store.docs) != 1 {
		t.Fatalf("stored documents = %d, want 1", len(store.docs))
	}
}

func TestProcessMessageNoAttachments(t *testing.T) {
	uc, store, mail, _, _ := newProcessFixture(domain.MinDocumentsPolicy(1))
	mail.messages["m1"] = mailMsg("m1", "REQ12345 - Blood Panel - Patient: John Smith")

	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Status != domain.IntakeFailed || report.Documents != 0 {
		t.Fatalf("report = %+v, want failed with no documents", report)
	}
	if len(store.intake) != 1 || store.intake[0].HasPDF {
		t.Fatalf("intake history = %+v, want failed entry without pdf", store.intake)
	}
}

func TestProcessMessageAnalysisFailureIsNonFatal(t *testing.T) {
	uc, store, mail, analyzer, _ := newProcessFixture(domain.MinDocumentsPolicy(1))
	analyzer.err = domain.ErrAnalysisUnavailable
	mail.messages["m1"] = mailMsg("m1", "REQ12345 - Blood Panel - Patient: John Smith", "doc.pdf")

	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Status != domain.IntakeSucceeded {
		t.Fatalf("status = %s, want %s (analysis failure is non-fatal)", report.Status, domain.IntakeSucceeded)
	}
	if report.Completions != 1 || report.AnalysesFailed != 1 || report.AnalysesOK != 0 {
		t.Fatalf("report = %+v", report)
	}

	for _, doc := range store.docs {
		if doc.Status != domain.StatusFailed {
			t.Fatalf("document status = %s, want %s", doc.Status, domain.StatusFailed)
		}
	}

	// The claim stays held, so the pending pass can retry the analysis.
	pending, err := store.ListPendingAnalyses(context.Background())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending analyses = %d, want 1", len(pending))
	}
}

func TestProcessMessageExtractionFailure(t *testing.T) {
	store := newFakeStore()
	mail := &fakeMail{messages: map[string]*domain.MailMessage{
		"m1": mailMsg("m1", "REQ12345 - Blood Panel - Patient: John Smith", "broken.pdf"),
	}}
	collator := NewCollateUseCase(store, domain.MinDocumentsPolicy(1))
	uc := NewProcessMessageUseCase(mail, &fakeExtractor{err: domain.ErrParseFailure}, &fakeBlobs{}, store, collator, &fakeAnalyzer{})

	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Status != domain.IntakeFailed || report.Documents != 0 {
		t.Fatalf("report = %+v, want failed with no documents", report)
	}
}

func TestProcessMessageStatusWriteFailureIsLoggedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	uc, store, mail, analyzer, _ := newProcessFixture(domain.MinDocumentsPolicy(1))
	mail.messages["m1"] = mailMsg("m1", "REQ12345 - Blood Panel - Patient: John Smith", "only.pdf")
	store.updateErr = errors.New("connection reset")

	report, err := uc.ProcessMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Completions != 1 || report.AnalysesOK != 1 {
		t.Fatalf("report = %+v, want the analysis to survive the status write failure", report)
	}
	if analyzer.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", analyzer.calls)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("stored analyses = %d, want 1", len(store.analyses))
	}
	if !strings.Contains(buf.String(), "case_status_update_failed") {
		t.Fatalf("status write failure not logged, output: %s", buf.String())
	}
}
