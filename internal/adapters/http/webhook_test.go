package httpadapter

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

const testSecret = "webhook-secret"

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func pubsubPayload(t *testing.T, notification map[string]any) []byte {
	t.Helper()
	inner, err := json.Marshal(notification)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	outer, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data": base64.StdEncoding.EncodeToString(inner),
		},
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return outer
}

func TestWebhookEnqueuesScan(t *testing.T) {
	f := &fakePipeline{}
	handler := newTestRouter(f, Options{WebhookSecret: testSecret})

	payload := pubsubPayload(t, map[string]any{
		"emailAddress": "clinic@example.com",
		"historyId":    12345,
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader(payload))
	req.Header.Set(webhookTokenHeader, signPayload(payload, testSecret))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", res.Code, res.Body.String())
	}
	if len(f.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(f.published))
	}
	event := f.published[0]
	if event.Kind != domain.IntakeEventScan || event.Days != 1 {
		t.Fatalf("event = %+v, want one-day scan", event)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := &fakePipeline{}
	handler := newTestRouter(f, Options{WebhookSecret: testSecret})

	payload := pubsubPayload(t, map[string]any{"historyId": 1})
	req := httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader(payload))
	req.Header.Set(webhookTokenHeader, "deadbeef")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
	if len(f.published) != 0 {
		t.Fatal("event published despite invalid signature")
	}
}

func TestWebhookSkipsVerificationWithoutSecret(t *testing.T) {
	f := &fakePipeline{}
	handler := newTestRouter(f, Options{})

	payload := pubsubPayload(t, map[string]any{"historyId": "99"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader(payload)))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestWebhookRequiresHistoryID(t *testing.T) {
	f := &fakePipeline{}
	handler := newTestRouter(f, Options{})

	payload := pubsubPayload(t, map[string]any{"emailAddress": "clinic@example.com"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader(payload)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestWebhookAcceptsBareNotification(t *testing.T) {
	f := &fakePipeline{}
	handler := newTestRouter(f, Options{})

	payload := []byte(`{"emailAddress": "clinic@example.com", "historyId": 42}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader(payload)))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", res.Code, res.Body.String())
	}
	if len(f.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(f.published))
	}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(&fakePipeline{}, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/webhook/gmail", bytes.NewReader([]byte("not json"))))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}
