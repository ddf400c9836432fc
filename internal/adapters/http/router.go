// Package httpadapter is the inbound HTTP surface: the Gmail push webhook
// plus a small operational API over the pipeline use cases.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	processor ports.MessageProcessor
	scanner   ports.MailboxScanner
	collator  ports.CaseCollator
	retrier   ports.AnalysisRetrier
	stats     ports.StatsReader
	queue     ports.IntakeQueue

	webhookSecret string
	scanDays      int

	metrics *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
}

type Options struct {
	WebhookSecret  string
	ScanDays       int
	Metrics        *metrics.HTTPServerMetrics
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

func NewRouter(
	processor ports.MessageProcessor,
	scanner ports.MailboxScanner,
	collator ports.CaseCollator,
	retrier ports.AnalysisRetrier,
	stats ports.StatsReader,
	queue ports.IntakeQueue,
	options Options,
) *Router {
	scanDays := options.ScanDays
	if scanDays < 1 {
		scanDays = 7
	}
	return &Router{
		processor:      processor,
		scanner:        scanner,
		collator:       collator,
		retrier:        retrier,
		stats:          stats,
		queue:          queue,
		webhookSecret:  options.WebhookSecret,
		scanDays:       scanDays,
		metrics:        options.Metrics,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		maxInFlight:    options.MaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/webhook/gmail", rt.gmailWebhook)
	mux.HandleFunc("/v1/process-recent", rt.processRecent)
	mux.HandleFunc("/v1/messages/", rt.processMessage)
	mux.HandleFunc("/v1/analyses/pending", rt.retryPending)
	mux.HandleFunc("/v1/cases/reopen", rt.reopenCase)
	mux.HandleFunc("/v1/stats", rt.pipelineStats)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if rt.maxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.maxInFlight, 50*time.Millisecond)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processRecent runs a synchronous mailbox sweep. The webhook path goes
// through the queue instead; this endpoint exists for operators who want
// the report back in the response.
func (rt *Router) processRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	days := rt.scanDays
	if r.Body != nil {
		var req struct {
			Days int `json:"days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Days > 0 {
			days = req.Days
		}
	}

	report, err := rt.scanner.ScanRecent(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) processMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/messages/")
	messageID := strings.TrimSuffix(rest, "/process")
	if messageID == "" || messageID == rest {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown path"})
		return
	}

	report, err := rt.processor.ProcessMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) retryPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	analyzed, failed, err := rt.retrier.RetryPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"analyzed": analyzed, "failed": failed})
}

func (rt *Router) reopenCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		RequestID   string `json:"request_id"`
		PatientName string `json:"patient_name"`
		TestType    string `json:"test_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	key := domain.NewCaseKey(req.RequestID, req.PatientName, req.TestType)
	if err := rt.collator.Reopen(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reopened", "case_key": key.String()})
}

func (rt *Router) pipelineStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.stats.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
