package usecase

import (
	"context"
	"testing"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

type scriptedProcessor struct {
	reports map[string]domain.MessageReport
	errs    map[string]error
}

func (p *scriptedProcessor) ProcessMessage(_ context.Context, id string) (domain.MessageReport, error) {
	if err, ok := p.errs[id]; ok {
		return domain.MessageReport{}, err
	}
	return p.reports[id], nil
}

func TestScanRecentTalliesOutcomes(t *testing.T) {
	mail := &fakeMail{searched: []string{"m1", "m2", "m3", "m4"}}
	processor := &scriptedProcessor{
		reports: map[string]domain.MessageReport{
			"m1": {MessageID: "m1", Status: domain.IntakeSucceeded, Documents: 1},
			"m2": {MessageID: "m2", Status: domain.IntakeSkipped},
			"m3": {MessageID: "m3", Status: domain.IntakeFailed, Error: "no pdf attachments found"},
		},
		errs: map[string]error{"m4": domain.ErrStoreUnavailable},
	}
	uc := NewScanUseCase(mail, processor)

	report, err := uc.ScanRecent(context.Background(), 7)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Total != 4 || report.Success != 1 || report.Skipped != 1 || report.Failed != 2 {
		t.Fatalf("report = %+v", report)
	}

	last := report.Messages[3]
	if last.MessageID != "m4" || last.Status != domain.IntakeFailed || last.Error == "" {
		t.Fatalf("failed entry = %+v", last)
	}
}

func TestScanRecentEmptyMailbox(t *testing.T) {
	uc := NewScanUseCase(&fakeMail{}, &scriptedProcessor{})

	report, err := uc.ScanRecent(context.Background(), 7)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Total != 0 || len(report.Messages) != 0 {
		t.Fatalf("report = %+v, want empty", report)
	}
}

func TestScanRecentStopsOnCancelledContext(t *testing.T) {
	mail := &fakeMail{searched: []string{"m1", "m2"}}
	uc := NewScanUseCase(mail, &scriptedProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := uc.ScanRecent(ctx, 7); err == nil {
		t.Fatal("expected context error")
	}
}
