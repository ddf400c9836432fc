package pdfattach

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/ports"
)

// DefaultMaxSize caps attachment bytes accepted for extraction.
const DefaultMaxSize = 50 * 1024 * 1024

// medicalKeywords drive the content heuristic. A document matching two or
// more is flagged as likely medical; the flag is advisory and never blocks
// ingestion.
var medicalKeywords = []string{
	"patient", "test", "result", "blood", "medical", "diagnosis",
	"lab", "specimen", "report", "clinic", "physician", "treatment",
}

// Extractor pulls plain text from PDF attachment bytes, page by page.
type Extractor struct {
	maxSize int64
}

func New(maxSize int64) *Extractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Extractor{maxSize: maxSize}
}

func (e *Extractor) ExtractText(ctx context.Context, data []byte) (ports.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return ports.Extraction{}, err
	}
	if int64(len(data)) > e.maxSize {
		return ports.Extraction{}, domain.WrapError(domain.ErrValidation, "extract pdf",
			fmt.Errorf("attachment size %d exceeds limit %d", len(data), e.maxSize))
	}
	if len(data) == 0 {
		return ports.Extraction{}, domain.WrapError(domain.ErrValidation, "extract pdf",
			fmt.Errorf("empty attachment"))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ports.Extraction{}, domain.WrapError(domain.ErrParseFailure, "open pdf", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is not fatal; the remaining
			// pages still feed collation.
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n", i, text)
	}

	// Scanned PDFs often carry no text layer at all. That is not an
	// extraction failure; the document still collates with empty text.
	text := normalizeWhitespace(sb.String())

	return ports.Extraction{
		Text:          text,
		Pages:         pages,
		LikelyMedical: likelyMedical(text),
	}, nil
}

// measurementPattern matches lab-style values such as "5.4 mg/dL" or
// reference ranges like "4.0 - 11.0"; a match counts as one heuristic hit.
var measurementPattern = regexp.MustCompile(`(?i)\d+(\.\d+)?\s*(mg/dl|mmol/l|g/dl|iu/l|u/l|ng/ml|%)|\d+(\.\d+)?\s*-\s*\d+(\.\d+)?`)

func likelyMedical(text string) bool {
	lowered := strings.ToLower(text)
	hits := 0
	for _, kw := range medicalKeywords {
		if strings.Contains(lowered, kw) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	if measurementPattern.MatchString(text) {
		hits++
	}
	return hits >= 2
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}
