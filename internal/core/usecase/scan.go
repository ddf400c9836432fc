package usecase

import (
	"context"
	"fmt"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

// ScanUseCase sweeps the mailbox for recent pipeline emails and runs each
// one through the message processor. Per-message failures are folded into
// the report; only a mailbox search failure aborts the scan.
type ScanUseCase struct {
	mail      ports.MailSource
	processor ports.MessageProcessor
}

func NewScanUseCase(mail ports.MailSource, processor ports.MessageProcessor) *ScanUseCase {
	return &ScanUseCase{mail: mail, processor: processor}
}

func (uc *ScanUseCase) ScanRecent(ctx context.Context, days int) (domain.ScanReport, error) {
	var report domain.ScanReport

	ids, err := uc.mail.Search(ctx, days)
	if err != nil {
		return report, fmt.Errorf("search mailbox: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		msgReport, err := uc.processor.ProcessMessage(ctx, id)
		if err != nil {
			msgReport.MessageID = id
			msgReport.Status = domain.IntakeFailed
			msgReport.Error = err.Error()
		}

		report.Total++
		switch msgReport.Status {
		case domain.IntakeSucceeded:
			report.Success++
		case domain.IntakeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		report.Messages = append(report.Messages, msgReport)
	}
	return report, nil
}
