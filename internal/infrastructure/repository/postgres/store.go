package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// Store is the single persistence surface of the pipeline: document
// records, completion claims, analysis results and intake history all
// live in one Postgres database so a completion claim and its documents
// commit against the same state.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	case_key TEXT NOT NULL,
	request_id TEXT NOT NULL,
	patient_name TEXT NOT NULL,
	test_type TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	source_message_id TEXT NOT NULL,
	source_filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source_message_id, source_filename)
);

CREATE INDEX IF NOT EXISTS idx_documents_case_key ON documents(case_key);
CREATE INDEX IF NOT EXISTS idx_documents_request_patient ON documents(request_id, patient_name);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS case_completions (
	case_key TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	patient_name TEXT NOT NULL,
	test_type TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_results (
	id TEXT PRIMARY KEY,
	case_key TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	model_used TEXT NOT NULL,
	produced_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_results_case_key ON analysis_results(case_key);

CREATE TABLE IF NOT EXISTS intake_history (
	message_id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	sender TEXT NOT NULL,
	request_id TEXT NOT NULL DEFAULT '',
	patient_name TEXT NOT NULL DEFAULT '',
	test_type TEXT NOT NULL DEFAULT '',
	has_pdf BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intake_history_processed_at ON intake_history(processed_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) SaveDocument(ctx context.Context, doc *domain.DocumentRecord) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO documents (
	id, case_key, request_id, patient_name, test_type, received_at, raw_text,
	source_message_id, source_filename, storage_path, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (source_message_id, source_filename) DO NOTHING
`,
		doc.ID, doc.Case.String(), doc.Case.RequestID, doc.Case.PatientName, doc.Case.TestType,
		doc.ReceivedAt, doc.RawText, doc.SourceMessageID, doc.SourceFilename, doc.StoragePath,
		string(doc.Status), now, now,
	)
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreUnavailable, "insert document", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert document rows affected: %w", err)
	}
	return rows == 1, nil
}

// FindByCaseKey selects by the three key columns rather than the joined
// case_key string: an empty TestType widens the match to every test type
// for the request+patient pair, which is the cross-type collation scope.
func (s *Store) FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]domain.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_id, patient_name, test_type, received_at, raw_text,
	source_message_id, source_filename, storage_path, status
FROM documents
WHERE request_id = $1 AND patient_name = $2 AND ($3 = '' OR test_type = $3)
ORDER BY received_at ASC
`, key.RequestID, key.PatientName, key.TestType)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "query case documents", err)
	}
	defer rows.Close()

	var docs []domain.DocumentRecord
	for rows.Next() {
		var doc domain.DocumentRecord
		var status string
		err := rows.Scan(
			&doc.ID, &doc.Case.RequestID, &doc.Case.PatientName, &doc.Case.TestType,
			&doc.ReceivedAt, &doc.RawText, &doc.SourceMessageID, &doc.SourceFilename,
			&doc.StoragePath, &status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Status = domain.DocumentStatus(status)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) UpdateCaseStatus(ctx context.Context, key domain.CaseKey, status domain.DocumentStatus) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE documents
SET status = $4, updated_at = $5
WHERE request_id = $1 AND patient_name = $2 AND ($3 = '' OR test_type = $3)
`, key.RequestID, key.PatientName, key.TestType, string(status), time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "update case status", err)
	}
	return nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1
`, documentID, string(status), time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "update document status", err)
	}
	return nil
}

// ClaimCompletion is the persisted edge trigger: the conditional insert
// commits for exactly one caller per completion event, regardless of how
// many processes evaluate the policy concurrently.
func (s *Store) ClaimCompletion(ctx context.Context, key domain.CaseKey) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO case_completions (case_key, request_id, patient_name, test_type, completed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (case_key) DO NOTHING
`, key.String(), key.RequestID, key.PatientName, key.TestType, time.Now().UTC())
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreUnavailable, "claim completion", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim completion rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) ReleaseCompletion(ctx context.Context, key domain.CaseKey) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM case_completions WHERE case_key = $1
`, key.String())
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "release completion", err)
	}
	return nil
}

// ListPendingAnalyses returns claim keys with no analysis produced at or
// after the claim. That covers failed dispatches and cases re-completed
// after a reopen. The claim carries its own key columns, so cross-type
// group claims (empty test_type) come back intact.
func (s *Store) ListPendingAnalyses(ctx context.Context) ([]domain.CaseKey, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.request_id, c.patient_name, c.test_type
FROM case_completions c
WHERE NOT EXISTS (
	SELECT 1 FROM analysis_results a
	WHERE a.case_key = c.case_key AND a.produced_at >= c.completed_at
)
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "query pending analyses", err)
	}
	defer rows.Close()

	var keys []domain.CaseKey
	for rows.Next() {
		var key domain.CaseKey
		if err := rows.Scan(&key.RequestID, &key.PatientName, &key.TestType); err != nil {
			return nil, fmt.Errorf("scan pending case key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending analyses: %w", err)
	}
	return keys, nil
}

func (s *Store) InsertAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO analysis_results (id, case_key, summary_text, model_used, produced_at)
VALUES ($1,$2,$3,$4,$5)
`, result.ID, result.Case.String(), result.SummaryText, result.ModelUsed, result.ProducedAt)
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "insert analysis result", err)
	}
	return nil
}

func (s *Store) RecordIntake(ctx context.Context, record *domain.IntakeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO intake_history (
	message_id, subject, sender, request_id, patient_name, test_type,
	has_pdf, status, error_message, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (message_id) DO UPDATE SET
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	has_pdf = EXCLUDED.has_pdf,
	processed_at = EXCLUDED.processed_at
`,
		record.MessageID, record.Subject, record.Sender,
		record.Case.RequestID, record.Case.PatientName, record.Case.TestType,
		record.HasPDF, string(record.Status), record.Error, record.ProcessedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "record intake", err)
	}
	return nil
}

// IsMessageProcessed reports a successful prior run only. Failed and
// skipped entries stay retryable.
func (s *Store) IsMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM intake_history WHERE message_id = $1 AND status = $2
)
`, messageID, string(domain.IntakeSucceeded)).Scan(&exists)
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreUnavailable, "check intake history", err)
	}
	return exists, nil
}

func (s *Store) ListRecentIntake(ctx context.Context, limit int) ([]domain.IntakeRecord, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, subject, sender, request_id, patient_name, test_type,
	has_pdf, status, error_message, processed_at
FROM intake_history
ORDER BY processed_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "query intake history", err)
	}
	defer rows.Close()

	var records []domain.IntakeRecord
	for rows.Next() {
		var rec domain.IntakeRecord
		var status string
		err := rows.Scan(
			&rec.MessageID, &rec.Subject, &rec.Sender,
			&rec.Case.RequestID, &rec.Case.PatientName, &rec.Case.TestType,
			&rec.HasPDF, &status, &rec.Error, &rec.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan intake record: %w", err)
		}
		rec.Status = domain.IntakeStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intake history: %w", err)
	}
	return records, nil
}

func (s *Store) Stats(ctx context.Context) (domain.PipelineStats, error) {
	var stats domain.PipelineStats
	var last sql.NullTime

	err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM intake_history),
	(SELECT COUNT(*) FROM intake_history WHERE status = 'success'),
	(SELECT COUNT(*) FROM intake_history WHERE status = 'failed'),
	(SELECT COUNT(*) FROM intake_history WHERE status = 'skipped'),
	(SELECT COUNT(*) FROM documents),
	(SELECT COUNT(*) FROM case_completions),
	(SELECT COUNT(*) FROM analysis_results),
	(SELECT COUNT(*) FROM case_completions c WHERE NOT EXISTS (
		SELECT 1 FROM analysis_results a
		WHERE a.case_key = c.case_key AND a.produced_at >= c.completed_at
	)),
	(SELECT MAX(processed_at) FROM intake_history)
`).Scan(
		&stats.MessagesProcessed, &stats.MessagesSucceeded, &stats.MessagesFailed,
		&stats.MessagesSkipped, &stats.DocumentsStored, &stats.CasesCompleted,
		&stats.AnalysesProduced, &stats.AnalysesPending, &last,
	)
	if err != nil {
		return domain.PipelineStats{}, domain.WrapError(domain.ErrStoreUnavailable, "query stats", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastProcessedAt = &t
	}
	return stats, nil
}
