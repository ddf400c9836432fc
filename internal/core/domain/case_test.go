package domain

import (
	"errors"
	"testing"
)

func TestNewCaseKeyNormalizes(t *testing.T) {
	got := NewCaseKey("  req12345 ", " John   SMITH ", "Blood   Panel")
	want := CaseKey{RequestID: "REQ12345", PatientName: "john smith", TestType: "blood panel"}
	if got != want {
		t.Fatalf("NewCaseKey = %+v, want %+v", got, want)
	}
}

func TestNewCaseKeyEmptyTestType(t *testing.T) {
	got := NewCaseKey("REQ1", "Jane Doe", "   ")
	if got.TestType != UnknownTestType {
		t.Fatalf("test type = %q, want %q", got.TestType, UnknownTestType)
	}
}

func TestCaseKeyIsZero(t *testing.T) {
	if (CaseKey{RequestID: "REQ1", PatientName: "p", TestType: "t"}).IsZero() {
		t.Fatal("complete key reported zero")
	}
	if !(CaseKey{PatientName: "p", TestType: "t"}).IsZero() {
		t.Fatal("missing request id not reported zero")
	}
	if !(CaseKey{RequestID: "REQ1", TestType: "t"}).IsZero() {
		t.Fatal("missing patient not reported zero")
	}
}

func TestCaseKeyGroup(t *testing.T) {
	key := NewCaseKey("REQ1", "Jane Doe", "Blood Panel")
	group := key.Group()
	if group.RequestID != key.RequestID || group.PatientName != key.PatientName {
		t.Fatalf("group = %+v, want request and patient preserved", group)
	}
	if group.TestType != "" {
		t.Fatalf("group test type = %q, want empty", group.TestType)
	}
	if other := NewCaseKey("REQ1", "Jane Doe", "MRI Scan"); other.Group() != group {
		t.Fatalf("keys differing only in test type grouped apart: %+v vs %+v", other.Group(), group)
	}
}

func TestRequiredTestTypesPolicySpansTestTypes(t *testing.T) {
	policy := RequiredTestTypesPolicy([]string{"blood panel", "mri scan"})
	if !policy.SpansTestTypes {
		t.Fatal("required-test-types policy must collate across test types")
	}
	if minDocs := MinDocumentsPolicy(2); minDocs.SpansTestTypes {
		t.Fatal("min-documents policy must keep per-test-type cases")
	}
}

func TestMinDocumentsPolicy(t *testing.T) {
	docs := []DocumentRecord{{ID: "1"}, {ID: "2"}}

	if policy := MinDocumentsPolicy(3); policy.Complete(docs) {
		t.Fatal("two documents satisfied min of three")
	}
	if policy := MinDocumentsPolicy(2); !policy.Complete(docs) {
		t.Fatal("two documents did not satisfy min of two")
	}
	// zero and negative thresholds clamp to one
	if policy := MinDocumentsPolicy(0); policy.Complete(nil) {
		t.Fatal("empty case satisfied clamped policy")
	}
}

func TestRequiredTestTypesPolicyEmptyIsNeverComplete(t *testing.T) {
	policy := RequiredTestTypesPolicy(nil)
	if policy.Complete([]DocumentRecord{{ID: "1"}}) {
		t.Fatal("policy with no required types reported complete")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrStoreUnavailable, "save document", cause)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error %v does not match kind", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("error %v does not match cause", err)
	}
	if WrapError(ErrStoreUnavailable, "save document", nil) != nil {
		t.Fatal("wrapping nil produced an error")
	}
}
