package usecase

import (
	"context"
	"fmt"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

// RetryPendingUseCase re-runs analysis for cases that completed but have
// no analysis produced since their completion claim. That covers both
// dispatch failures and cases reopened and re-completed after new
// documents arrived.
type RetryPendingUseCase struct {
	store    ports.DocumentStore
	analyzer ports.CaseAnalyzer
}

func NewRetryPendingUseCase(store ports.DocumentStore, analyzer ports.CaseAnalyzer) *RetryPendingUseCase {
	return &RetryPendingUseCase{store: store, analyzer: analyzer}
}

func (uc *RetryPendingUseCase) RetryPending(ctx context.Context) (analyzed, failed int, err error) {
	keys, err := uc.store.ListPendingAnalyses(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending analyses: %w", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return analyzed, failed, err
		}

		docs, err := uc.store.FindByCaseKey(ctx, key)
		if err != nil {
			failed++
			continue
		}

		result, err := uc.analyzer.Analyze(ctx, key, docs)
		if err != nil {
			setCaseStatus(ctx, uc.store, key, domain.StatusFailed)
			failed++
			continue
		}
		if err := uc.store.InsertAnalysis(ctx, result); err != nil {
			setCaseStatus(ctx, uc.store, key, domain.StatusFailed)
			failed++
			continue
		}
		setCaseStatus(ctx, uc.store, key, domain.StatusAnalyzed)
		analyzed++
	}
	return analyzed, failed, nil
}
