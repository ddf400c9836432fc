package localfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := []byte("%PDF-1.4 test")
	if err := storage.Save(context.Background(), "doc-1_report.pdf", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := storage.Open(context.Background(), "doc-1_report.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("blob = %q, want %q", got, payload)
	}
}

func TestOpenMissingBlob(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := storage.Open(context.Background(), "missing.pdf"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound kind", err)
	}
}

func TestSaveStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Save(context.Background(), "../../escape.pdf", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := storage.Open(context.Background(), "escape.pdf"); err != nil {
		t.Fatalf("Open() after sanitized save error = %v", err)
	}
}
