package domain

import "time"

type IntakeStatus string

const (
	IntakeSucceeded IntakeStatus = "success"
	IntakeFailed    IntakeStatus = "failed"
	IntakeSkipped   IntakeStatus = "skipped"
)

// IntakeRecord is the per-message processing history row. Failed entries
// (unparseable subjects, missing attachments) are kept for manual triage
// rather than dropped.
type IntakeRecord struct {
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Case        CaseKey      `json:"case_key"`
	HasPDF      bool         `json:"has_pdf"`
	Status      IntakeStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	ProcessedAt time.Time    `json:"processed_at"`
}

// MessageReport summarizes one unit of work for callers and metrics.
type MessageReport struct {
	MessageID      string       `json:"message_id"`
	Status         IntakeStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
	Documents      int          `json:"documents"`
	Completions    int          `json:"completions"`
	AnalysesOK     int          `json:"analyses_ok"`
	AnalysesFailed int          `json:"analyses_failed"`
	ParseFailed    bool         `json:"parse_failed"`
}

// ScanReport aggregates a batch poll. Messages are processed
// independently, so a failed entry never aborts the rest.
type ScanReport struct {
	Total    int             `json:"total"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
	Messages []MessageReport `json:"messages"`
}

// MailMessage is the normalized raw email representation fed to the
// subject parser, independent of how it arrived (push or poll).
type MailMessage struct {
	ID          string
	Subject     string
	Sender      string
	ReceivedAt  time.Time
	Attachments []MailAttachment
}

// MailAttachment is one downloaded PDF attachment.
type MailAttachment struct {
	Filename string
	Data     []byte
}

// IntakeEvent travels over the queue between the webhook server and the
// worker.
type IntakeEventKind string

const (
	IntakeEventScan    IntakeEventKind = "scan"
	IntakeEventMessage IntakeEventKind = "message"
)

type IntakeEvent struct {
	Kind      IntakeEventKind `json:"kind"`
	MessageID string          `json:"message_id,omitempty"`
	Days      int             `json:"days,omitempty"`
}

// PipelineStats backs the stats CLI, the stats endpoint and the XLSX
// export.
type PipelineStats struct {
	MessagesProcessed int64      `json:"messages_processed"`
	MessagesSucceeded int64      `json:"messages_succeeded"`
	MessagesFailed    int64      `json:"messages_failed"`
	MessagesSkipped   int64      `json:"messages_skipped"`
	DocumentsStored   int64      `json:"documents_stored"`
	CasesCompleted    int64      `json:"cases_completed"`
	AnalysesProduced  int64      `json:"analyses_produced"`
	AnalysesPending   int64      `json:"analyses_pending"`
	LastProcessedAt   *time.Time `json:"last_processed_at,omitempty"`
}
