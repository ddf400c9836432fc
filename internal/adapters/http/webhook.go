package httpadapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// webhookTokenHeader carries the hex HMAC-SHA256 of the raw payload,
// keyed with the shared webhook secret.
const webhookTokenHeader = "X-Goog-Channel-Token"

const maxWebhookPayload = 1 << 20

// pubsubEnvelope is the Pub/Sub push wrapper around the Gmail history
// notification. Data is base64-encoded JSON.
type pubsubEnvelope struct {
	Message struct {
		Data string `json:"data"`
	} `json:"message"`
}

type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    any    `json:"historyId"`
}

// gmailWebhook accepts a push notification, verifies it, and enqueues a
// one-day scan. Processing happens on the worker so the webhook responds
// within Pub/Sub's delivery deadline.
func (rt *Router) gmailWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable payload"})
		return
	}

	if rt.webhookSecret != "" {
		if !verifyWebhookSignature(payload, r.Header.Get(webhookTokenHeader), rt.webhookSecret) {
			slog.Warn("webhook_signature_invalid", "request_id", requestIDFromContext(r.Context()))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	notification, err := decodeNotification(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if notification.HistoryID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no historyId provided"})
		return
	}

	event := domain.IntakeEvent{Kind: domain.IntakeEventScan, Days: 1}
	if err := rt.queue.PublishIntakeEvent(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("webhook_accepted",
		"request_id", requestIDFromContext(r.Context()),
		"email_address", notification.EmailAddress,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "notification received"})
}

func verifyWebhookSignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// decodeNotification unwraps the Pub/Sub envelope when present and falls
// back to a bare notification body.
func decodeNotification(payload []byte) (gmailNotification, error) {
	var notification gmailNotification

	var envelope pubsubEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return notification, jsonError{}
	}
	if envelope.Message.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return notification, invalidDataError{}
		}
		if err := json.Unmarshal(decoded, &notification); err != nil {
			return notification, invalidDataError{}
		}
		return notification, nil
	}

	if err := json.Unmarshal(payload, &notification); err != nil {
		return notification, jsonError{}
	}
	return notification, nil
}

type jsonError struct{}

func (jsonError) Error() string { return "invalid json payload" }

type invalidDataError struct{}

func (invalidDataError) Error() string { return "invalid notification data" }
