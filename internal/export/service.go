// Package export produces XLSX reports from the pipeline's processing
// history for operators who want the stats outside the API.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

const intakeSheetRows = 500

// Service renders the pipeline stats plus recent intake history into a
// two-sheet workbook.
type Service struct {
	store  ports.DocumentStore
	logger *slog.Logger
}

func NewService(store ports.DocumentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) ExportStatsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	history, err := s.store.ListRecentIntake(ctx, intakeSheetRows)
	if err != nil {
		return nil, fmt.Errorf("query intake history: %w", err)
	}

	f := excelize.NewFile()

	const summarySheet = "Summary"
	if err := ensureSheet(f, summarySheet); err != nil {
		return nil, err
	}
	summary := [][2]any{
		{"Messages Processed", stats.MessagesProcessed},
		{"Messages Succeeded", stats.MessagesSucceeded},
		{"Messages Failed", stats.MessagesFailed},
		{"Messages Skipped", stats.MessagesSkipped},
		{"Documents Stored", stats.DocumentsStored},
		{"Cases Completed", stats.CasesCompleted},
		{"Analyses Produced", stats.AnalysesProduced},
		{"Analyses Pending", stats.AnalysesPending},
	}
	for i, pair := range summary {
		writeCell(f, summarySheet, 1, i+1, pair[0])
		writeCell(f, summarySheet, 2, i+1, pair[1])
	}
	// keep the two columns readable without styling machinery
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	if stats.LastProcessedAt != nil {
		writeCell(f, summarySheet, 1, len(summary)+1, "Last Processed At")
		writeCell(f, summarySheet, 2, len(summary)+1, stats.LastProcessedAt.Format(time.RFC3339))
	}

	const historySheet = "Intake History"
	if err := ensureSheet(f, historySheet); err != nil {
		return nil, err
	}
	headers := []string{
		"Message ID", "Subject", "Sender", "Request ID", "Patient",
		"Test Type", "Has PDF", "Status", "Error", "Processed At",
	}
	for i, h := range headers {
		writeCell(f, historySheet, i+1, 1, h)
	}
	for i, rec := range history {
		row := i + 2
		writeCell(f, historySheet, 1, row, rec.MessageID)
		writeCell(f, historySheet, 2, row, rec.Subject)
		writeCell(f, historySheet, 3, row, rec.Sender)
		writeCell(f, historySheet, 4, row, rec.Case.RequestID)
		writeCell(f, historySheet, 5, row, rec.Case.PatientName)
		writeCell(f, historySheet, 6, row, rec.Case.TestType)
		writeCell(f, historySheet, 7, row, rec.HasPDF)
		writeCell(f, historySheet, 8, row, string(rec.Status))
		writeCell(f, historySheet, 9, row, rec.Error)
		writeCell(f, historySheet, 10, row, rec.ProcessedAt.Format(time.RFC3339))
	}

	// The workbook starts with a default sheet excelize names "Sheet1".
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(summarySheet); err == nil && index >= 0 {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	s.logger.Info("stats_export_rendered",
		"history_rows", len(history),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func ensureSheet(f *excelize.File, name string) error {
	if index, _ := f.GetSheetIndex(name); index == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	return nil
}

func writeCell(f *excelize.File, sheet string, col, row int, value any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, value)
}
