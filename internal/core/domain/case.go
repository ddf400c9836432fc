package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusNew      DocumentStatus = "new"
	StatusCollated DocumentStatus = "collated"
	StatusAnalyzed DocumentStatus = "analyzed"
	StatusFailed   DocumentStatus = "failed"
)

// UnknownTestType is used when a subject carried no recognizable test type.
const UnknownTestType = "unknown"

// CaseKey identifies one clinical case. Two documents belong to the same
// case iff their normalized keys are equal.
type CaseKey struct {
	RequestID   string `json:"request_id"`
	PatientName string `json:"patient_name"`
	TestType    string `json:"test_type"`
}

// NewCaseKey normalizes the raw parsed fields: case-fold plus whitespace
// collapse on all three, empty test type mapped to "unknown". RequestID is
// upper-cased since that is how request identifiers appear in subjects.
func NewCaseKey(requestID, patientName, testType string) CaseKey {
	key := CaseKey{
		RequestID:   strings.ToUpper(collapseSpace(requestID)),
		PatientName: strings.ToLower(collapseSpace(patientName)),
		TestType:    strings.ToLower(collapseSpace(testType)),
	}
	if key.TestType == "" {
		key.TestType = UnknownTestType
	}
	return key
}

func (k CaseKey) IsZero() bool {
	return k.RequestID == "" || k.PatientName == ""
}

// String renders the canonical pipe-joined form used as the storage key
// and as the per-key lock name.
func (k CaseKey) String() string {
	return k.RequestID + "|" + k.PatientName + "|" + k.TestType
}

// Group strips the test type, identifying the request+patient pair a
// cross-type policy collates on. The empty test type cannot collide with
// a document key: normalization maps a missing test type to
// UnknownTestType, never to "".
func (k CaseKey) Group() CaseKey {
	k.TestType = ""
	return k
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DocumentRecord is one received attachment. Immutable after ingestion
// except for Status.
type DocumentRecord struct {
	ID              string         `json:"id"`
	Case            CaseKey        `json:"case_key"`
	ReceivedAt      time.Time      `json:"received_at"`
	RawText         string         `json:"raw_text,omitempty"`
	SourceMessageID string         `json:"source_message_id"`
	SourceFilename  string         `json:"source_filename"`
	StoragePath     string         `json:"storage_path"`
	Status          DocumentStatus `json:"status"`
}

// Case is derived, never persisted on its own: the documents sharing a
// CaseKey ordered by ReceivedAt ascending, plus the computed completeness.
type Case struct {
	Key       CaseKey          `json:"key"`
	Documents []DocumentRecord `json:"documents"`
	Complete  bool             `json:"complete"`
}

// AnalysisResult is append-only. Re-analysis after a reopen inserts a new
// result rather than overwriting an earlier one.
type AnalysisResult struct {
	ID          string    `json:"id"`
	Case        CaseKey   `json:"case_key"`
	SummaryText string    `json:"summary_text"`
	ModelUsed   string    `json:"model_used"`
	ProducedAt  time.Time `json:"produced_at"`
}

type CollationState string

const (
	CollationNotComplete     CollationState = "not_complete"
	CollationJustCompleted   CollationState = "just_completed"
	CollationAlreadyComplete CollationState = "already_complete"
	CollationDuplicate       CollationState = "duplicate"
)

// CollationOutcome is the result of ingesting one document. Snapshot is
// populated only for CollationJustCompleted.
type CollationOutcome struct {
	State    CollationState `json:"state"`
	Snapshot *Case          `json:"snapshot,omitempty"`
}

// CompletenessPolicy decides whether a case is ready for analysis. It must
// be a pure function of the document set its collation scope selects.
type CompletenessPolicy func(docs []DocumentRecord) bool

// CollationPolicy pairs a completeness rule with its collation scope.
// SpansTestTypes widens lookup, locking and the completion claim to every
// document sharing the request+patient pair. A policy waiting on a set of
// test types needs the wide scope: the test type is part of the
// per-document case key, so a single key only ever observes one type.
type CollationPolicy struct {
	Complete       CompletenessPolicy
	SpansTestTypes bool
}

// MinDocumentsPolicy marks a case complete once at least n documents share
// the key. n below 1 is treated as 1.
func MinDocumentsPolicy(n int) CollationPolicy {
	if n < 1 {
		n = 1
	}
	return CollationPolicy{
		Complete: func(docs []DocumentRecord) bool {
			return len(docs) >= n
		},
	}
}

// RequiredTestTypesPolicy marks a case complete once every required test
// type has been observed for the request+patient pair.
func RequiredTestTypesPolicy(types []string) CollationPolicy {
	required := make(map[string]struct{}, len(types))
	for _, t := range types {
		t = strings.ToLower(collapseSpace(t))
		if t != "" {
			required[t] = struct{}{}
		}
	}
	return CollationPolicy{
		SpansTestTypes: true,
		Complete: func(docs []DocumentRecord) bool {
			if len(required) == 0 {
				return false
			}
			seen := make(map[string]struct{}, len(docs))
			for _, doc := range docs {
				seen[doc.Case.TestType] = struct{}{}
			}
			for t := range required {
				if _, ok := seen[t]; !ok {
					return false
				}
			}
			return true
		},
	}
}
