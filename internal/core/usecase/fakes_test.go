package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

// fakeStore is an in-memory DocumentStore with the same idempotency and
// claim semantics as the postgres implementation.
type fakeStore struct {
	mu sync.Mutex

	docs      map[string]domain.DocumentRecord // keyed by source_message_id+"/"+source_filename
	claims    map[string]time.Time
	analyses  []domain.AnalysisResult
	intake    []domain.IntakeRecord
	processed map[string]bool

	saveErr    error
	findErr    error
	claimErr   error
	releaseErr error
	insertErr  error
	pendingErr error
	updateErr  error

	statusUpdates []domain.DocumentStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]domain.DocumentRecord),
		claims:    make(map[string]time.Time),
		processed: make(map[string]bool),
	}
}

func (s *fakeStore) SaveDocument(_ context.Context, doc *domain.DocumentRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return false, s.saveErr
	}
	id := doc.SourceMessageID + "/" + doc.SourceFilename
	if _, ok := s.docs[id]; ok {
		return false, nil
	}
	s.docs[id] = *doc
	return true, nil
}

func (s *fakeStore) FindByCaseKey(_ context.Context, key domain.CaseKey) ([]domain.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []domain.DocumentRecord
	for _, doc := range s.docs {
		if keyMatches(doc.Case, key) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (s *fakeStore) UpdateCaseStatus(_ context.Context, key domain.CaseKey, status domain.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for id, doc := range s.docs {
		if keyMatches(doc.Case, key) {
			doc.Status = status
			s.docs[id] = doc
		}
	}
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, documentID string, status domain.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for id, doc := range s.docs {
		if doc.ID == documentID {
			doc.Status = status
			s.docs[id] = doc
		}
	}
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

// keyMatches mirrors the store's scope rule: an empty TestType on the
// lookup key matches every test type for the request+patient pair.
func keyMatches(docKey, lookup domain.CaseKey) bool {
	if docKey.RequestID != lookup.RequestID || docKey.PatientName != lookup.PatientName {
		return false
	}
	return lookup.TestType == "" || docKey.TestType == lookup.TestType
}

func (s *fakeStore) ClaimCompletion(_ context.Context, key domain.CaseKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if _, ok := s.claims[key.String()]; ok {
		return false, nil
	}
	s.claims[key.String()] = time.Now().UTC()
	return true, nil
}

func (s *fakeStore) ReleaseCompletion(_ context.Context, key domain.CaseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return s.releaseErr
	}
	delete(s.claims, key.String())
	return nil
}

func (s *fakeStore) ListPendingAnalyses(_ context.Context) ([]domain.CaseKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	var out []domain.CaseKey
	for raw, claimedAt := range s.claims {
		key := splitKey(raw)
		covered := false
		for _, res := range s.analyses {
			if res.Case == key && !res.ProducedAt.Before(claimedAt) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertAnalysis(_ context.Context, result *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	res := *result
	if res.ProducedAt.IsZero() {
		res.ProducedAt = time.Now().UTC()
	}
	s.analyses = append(s.analyses, res)
	return nil
}

func (s *fakeStore) RecordIntake(_ context.Context, record *domain.IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intake = append(s.intake, *record)
	s.processed[record.MessageID] = true
	return nil
}

func (s *fakeStore) IsMessageProcessed(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[messageID], nil
}

func (s *fakeStore) ListRecentIntake(_ context.Context, limit int) ([]domain.IntakeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.intake) {
		limit = len(s.intake)
	}
	return s.intake[len(s.intake)-limit:], nil
}

func (s *fakeStore) Stats(_ context.Context) (domain.PipelineStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.PipelineStats{
		DocumentsStored: int64(len(s.docs)),
		CasesCompleted:  int64(len(s.claims)),
	}, nil
}

func splitKey(raw string) domain.CaseKey {
	parts := [3]string{}
	i := 0
	for _, r := range raw {
		if r == '|' {
			i++
			continue
		}
		parts[i] += string(r)
	}
	return domain.CaseKey{RequestID: parts[0], PatientName: parts[1], TestType: parts[2]}
}

type fakeMail struct {
	messages map[string]*domain.MailMessage
	searched []string
	read     []string
	fetchErr error
}

func (m *fakeMail) Search(_ context.Context, _ int) ([]string, error) {
	return m.searched, nil
}

func (m *fakeMail) Fetch(_ context.Context, id string) (*domain.MailMessage, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return msg, nil
}

func (m *fakeMail) MarkRead(_ context.Context, id string) error {
	m.read = append(m.read, id)
	return nil
}

func (m *fakeMail) Watch(_ context.Context, _ string) (time.Time, error) {
	return time.Now().Add(time.Hour), nil
}

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) ExtractText(_ context.Context, data []byte) (ports.Extraction, error) {
	if e.err != nil {
		return ports.Extraction{}, e.err
	}
	return ports.Extraction{Text: "text of " + string(data), Pages: 1, LikelyMedical: true}, nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (b *fakeBlobs) Save(_ context.Context, key string, _ io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.saved = append(b.saved, key)
	return nil
}

func (b *fakeBlobs) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, key domain.CaseKey, docs []domain.DocumentRecord) (*domain.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &domain.AnalysisResult{
		ID:          "analysis-1",
		Case:        key,
		SummaryText: "summary",
		ModelUsed:   "test-model",
		ProducedAt:  time.Now().UTC(),
	}, nil
}
