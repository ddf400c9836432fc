// Package subject extracts case identity fields from free-form email
// subject lines using an ordered list of pattern rules. The rule order is
// fixed and deterministic: it directly determines case key derivation, so
// earlier rules always win over later ones.
package subject

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// Parsed holds the three raw fields a rule extracted, before case-key
// normalization.
type Parsed struct {
	RequestID   string
	TestType    string
	PatientName string
	Rule        string
}

// CaseKey derives the normalized case identity for the parsed fields.
func (p Parsed) CaseKey() domain.CaseKey {
	return domain.NewCaseKey(p.RequestID, p.PatientName, p.TestType)
}

// ParseFailure carries the raw subject for manual triage. It wraps
// domain.ErrParseFailure so callers can match the kind.
type ParseFailure struct {
	Subject string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("no subject rule matched: %q", e.Subject)
}

func (e *ParseFailure) Unwrap() error { return domain.ErrParseFailure }

// Rule priority, first full match wins:
//  1. pipe-labelled: "Request ID: REQ123 | Test: Blood Work | Patient: John Doe"
//  2. dash-delimited: "REQ456 - MRI Scan - Jane Smith"
//  3. natural language: "Request REQ789 Blood Test for Patient Mary Johnson"
//  4. loose fallback: any REQ token, with placeholder fields where needed
var (
	rePipeLabelled = regexp.MustCompile(`(?i)Request\s+ID:\s*([A-Z0-9]+).*?Test:\s*([^|]+).*?Patient:\s*([^|]+)`)
	reDashed       = regexp.MustCompile(`(?i)(REQ[A-Z0-9]+)\s*-\s*([^-]+)\s*-\s*(.+)`)
	reNatural      = regexp.MustCompile(`(?i)Request\s+(REQ[A-Z0-9]+)\s+(.+?)\s+for\s+Patient\s+(.+)`)
	reRequestToken = regexp.MustCompile(`(?i)REQ[A-Z0-9]+`)
	rePatientTail  = regexp.MustCompile(`(?i)Patient[:\s]+([A-Za-z\s]+)`)
)

// Parse applies the rules in priority order and returns the fields of the
// first rule that yields all three. A subject no rule matches returns a
// *ParseFailure error; Parse never panics and never aborts a pipeline.
func Parse(raw string) (Parsed, error) {
	if m := rePipeLabelled.FindStringSubmatch(raw); m != nil {
		return newParsed("pipe-labelled", m[1], m[2], m[3]), nil
	}
	if m := reDashed.FindStringSubmatch(raw); m != nil {
		return newParsed("dash-delimited", m[1], m[2], m[3]), nil
	}
	if m := reNatural.FindStringSubmatch(raw); m != nil {
		return newParsed("natural-language", m[1], m[2], m[3]), nil
	}
	if parsed, ok := parseLoose(raw); ok {
		return parsed, nil
	}
	return Parsed{}, &ParseFailure{Subject: raw}
}

func newParsed(rule, requestID, testType, patientName string) Parsed {
	return Parsed{
		RequestID:   strings.TrimSpace(requestID),
		TestType:    strings.TrimSpace(testType),
		PatientName: strings.TrimSpace(patientName),
		Rule:        rule,
	}
}

// parseLoose is the last-resort rule: locate a REQ token, take the patient
// from a trailing "Patient ..." segment or the final two words, and treat
// the middle portion as the test type.
func parseLoose(raw string) (Parsed, bool) {
	loc := reRequestToken.FindStringIndex(raw)
	if loc == nil {
		return Parsed{}, false
	}
	requestID := raw[loc[0]:loc[1]]

	patientName := ""
	patientStart := -1
	if m := rePatientTail.FindStringSubmatchIndex(raw); m != nil {
		patientName = strings.TrimSpace(raw[m[2]:m[3]])
		patientStart = m[0]
	} else if words := strings.Fields(raw); len(words) >= 3 {
		patientName = strings.Join(words[len(words)-2:], " ")
	} else {
		patientName = "Unknown Patient"
	}

	testType := ""
	if patientStart >= 0 {
		testType = strings.Trim(raw[loc[1]:patientStart], " -|")
	} else {
		words := strings.Fields(raw)
		reqIndex := 0
		for i, w := range words {
			if strings.Contains(strings.ToUpper(w), "REQ") {
				reqIndex = i
				break
			}
		}
		switch {
		case len(words) > reqIndex+3:
			testType = strings.Join(words[reqIndex+1:len(words)-2], " ")
		case len(words) <= reqIndex+1:
			testType = "Unknown Test"
		}
	}

	testType = strings.TrimSpace(testType)
	if testType == "" {
		return Parsed{}, false
	}
	return Parsed{
		RequestID:   requestID,
		TestType:    testType,
		PatientName: patientName,
		Rule:        "loose-fallback",
	}, true
}
