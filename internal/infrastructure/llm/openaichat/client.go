// Package openaichat analyzes completed cases through an OpenAI-compatible
// chat completions endpoint. Any provider speaking that wire format works;
// the base URL and model come from configuration.
package openaichat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/infrastructure/resilience"
)

// documentSeparator joins the ordered raw texts into the single collated
// body the model sees.
const documentSeparator = "\n--- NEW DOCUMENT ---\n"

const systemPrompt = "You are a clinical document analyst. You receive the full set of " +
	"documents for one medical test request and produce a concise summary: key findings, " +
	"abnormal values, and recommended follow-up. Answer in plain text."

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, model string, maxTokens int, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Analyze runs the chat completion over the case snapshot. Every failure
// comes back as domain.ErrAnalysisUnavailable; the caller decides whether
// to hold the case for a later retry.
func (c *Client) Analyze(ctx context.Context, key domain.CaseKey, docs []domain.DocumentRecord) (*domain.AnalysisResult, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "analyze case", fmt.Errorf("empty case snapshot"))
	}

	prompt := buildCasePrompt(key, docs)

	var content string
	err := c.executor.Execute(ctx, "chat_completion", func(ctx context.Context) error {
		var err error
		content, err = c.chatCompletion(ctx, prompt)
		return err
	}, classifyChatError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAnalysisUnavailable, "analyze case", err)
	}

	return &domain.AnalysisResult{
		ID:          uuid.NewString(),
		Case:        key,
		SummaryText: content,
		ModelUsed:   c.model,
		ProducedAt:  time.Now().UTC(),
	}, nil
}

func buildCasePrompt(key domain.CaseKey, docs []domain.DocumentRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request ID: %s\nPatient: %s\nTest type: %s\nDocuments: %d\n\n",
		key.RequestID, key.PatientName, key.TestType, len(docs))

	for i, doc := range docs {
		if i > 0 {
			sb.WriteString(documentSeparator)
		}
		fmt.Fprintf(&sb, "[%s, received %s]\n", doc.SourceFilename, doc.ReceivedAt.Format(time.RFC3339))
		sb.WriteString(doc.RawText)
	}
	return sb.String()
}
