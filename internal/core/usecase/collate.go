package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

// CollateUseCase decides when a case is complete and fires exactly one
// completion event per NOT_COMPLETE -> COMPLETE transition. Ingest calls
// for the same collation scope are serialized in-process; the persisted
// completion claim makes the edge trigger exact across processes.
type CollateUseCase struct {
	store  ports.DocumentStore
	policy domain.CollationPolicy
	locks  keyedLocks
}

func NewCollateUseCase(store ports.DocumentStore, policy domain.CollationPolicy) *CollateUseCase {
	return &CollateUseCase{
		store:  store,
		policy: policy,
	}
}

// scopeOf maps a document's key to the key the policy evaluates, locks
// and claims against. Policies spanning test types collate the whole
// request+patient group.
func (uc *CollateUseCase) scopeOf(key domain.CaseKey) domain.CaseKey {
	if uc.policy.SpansTestTypes {
		return key.Group()
	}
	return key
}

func (uc *CollateUseCase) Ingest(ctx context.Context, doc *domain.DocumentRecord) (domain.CollationOutcome, error) {
	if doc == nil {
		return domain.CollationOutcome{}, domain.WrapError(domain.ErrValidation, "ingest document", errors.New("nil document"))
	}
	if doc.Case.IsZero() {
		return domain.CollationOutcome{}, domain.WrapError(domain.ErrValidation, "ingest document", errors.New("missing case key"))
	}

	scope := uc.scopeOf(doc.Case)
	unlock := uc.locks.lock(scope.String())
	defer unlock()

	created, err := uc.store.SaveDocument(ctx, doc)
	if err != nil {
		return domain.CollationOutcome{}, fmt.Errorf("save document: %w", err)
	}
	if !created {
		return domain.CollationOutcome{State: domain.CollationDuplicate}, nil
	}

	docs, err := uc.store.FindByCaseKey(ctx, scope)
	if err != nil {
		return domain.CollationOutcome{}, fmt.Errorf("load case documents: %w", err)
	}

	if !uc.policy.Complete(docs) {
		return domain.CollationOutcome{State: domain.CollationNotComplete}, nil
	}

	won, err := uc.store.ClaimCompletion(ctx, scope)
	if err != nil {
		return domain.CollationOutcome{}, fmt.Errorf("claim completion: %w", err)
	}
	if !won {
		// A late arrival joins a case that already fired. Its status
		// reflects membership; the analysis is not re-triggered.
		if err := uc.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusCollated); err != nil {
			slog.Warn("document_status_update_failed",
				"document_id", doc.ID,
				"status", string(domain.StatusCollated),
				"error", err,
			)
		}
		return domain.CollationOutcome{State: domain.CollationAlreadyComplete}, nil
	}

	return domain.CollationOutcome{
		State: domain.CollationJustCompleted,
		Snapshot: &domain.Case{
			Key:       scope,
			Documents: docs,
			Complete:  true,
		},
	}, nil
}

// Reopen releases the completion claim so the next evaluation may fire a
// new completion event. Administrative and explicit, never automatic.
func (uc *CollateUseCase) Reopen(ctx context.Context, key domain.CaseKey) error {
	if key.IsZero() {
		return domain.WrapError(domain.ErrValidation, "reopen case", errors.New("missing case key"))
	}

	scope := uc.scopeOf(key)
	unlock := uc.locks.lock(scope.String())
	defer unlock()

	if err := uc.store.ReleaseCompletion(ctx, scope); err != nil {
		return fmt.Errorf("release completion: %w", err)
	}
	return nil
}

// keyedLocks provides mutual exclusion scoped to one case key. Entries are
// kept for the process lifetime; the breaker registry in the resilience
// package grows the same way.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &sync.Mutex{}
		k.locks[key] = entry
	}
	k.mu.Unlock()

	entry.Lock()
	return entry.Unlock
}
