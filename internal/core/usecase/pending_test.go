package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

func TestRetryPendingAnalyzesClaimedCases(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{}
	key := domain.NewCaseKey("REQ12345", "John Smith", "Blood Panel")

	doc := testDoc(key, "m1", "a.pdf")
	if _, err := store.SaveDocument(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if _, err := store.ClaimCompletion(context.Background(), key); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	uc := NewRetryPendingUseCase(store, analyzer)
	analyzed, failed, err := uc.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if analyzed != 1 || failed != 0 {
		t.Fatalf("analyzed = %d, failed = %d, want 1/0", analyzed, failed)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("stored analyses = %d, want 1", len(store.analyses))
	}
	for _, d := range store.docs {
		if d.Status != domain.StatusAnalyzed {
			t.Fatalf("document status = %s, want %s", d.Status, domain.StatusAnalyzed)
		}
	}
}

func TestRetryPendingSkipsCoveredCases(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{}
	key := domain.NewCaseKey("REQ12345", "John Smith", "Blood Panel")

	if _, err := store.ClaimCompletion(context.Background(), key); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	err := store.InsertAnalysis(context.Background(), &domain.AnalysisResult{
		ID:         "done",
		Case:       key,
		ProducedAt: time.Now().UTC().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("seed analysis: %v", err)
	}

	uc := NewRetryPendingUseCase(store, analyzer)
	analyzed, failed, err := uc.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if analyzed != 0 || failed != 0 || analyzer.calls != 0 {
		t.Fatalf("analyzed = %d, failed = %d, calls = %d, want all zero", analyzed, failed, analyzer.calls)
	}
}

func TestRetryPendingCountsFailures(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{err: domain.ErrAnalysisUnavailable}
	key := domain.NewCaseKey("REQ12345", "John Smith", "Blood Panel")

	if _, err := store.SaveDocument(context.Background(), testDoc(key, "m1", "a.pdf")); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if _, err := store.ClaimCompletion(context.Background(), key); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	uc := NewRetryPendingUseCase(store, analyzer)
	analyzed, failed, err := uc.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if analyzed != 0 || failed != 1 {
		t.Fatalf("analyzed = %d, failed = %d, want 0/1", analyzed, failed)
	}
	for _, d := range store.docs {
		if d.Status != domain.StatusFailed {
			t.Fatalf("document status = %s, want %s", d.Status, domain.StatusFailed)
		}
	}
}
