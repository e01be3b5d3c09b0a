// Package classify maps raw endpoint failure text to a small set of
// stable error codes plus a repair hint.
//
// The codes are what an automated caller (and the pipeline's own repair
// loop) use to decide the next move: fix the grammar, shrink the query,
// wait, or give up. Classification is pure keyword matching over the
// lowercased message; it is total and never fails.
package classify

import (
	"strings"
)

// Code is a stable, machine-readable error category.
type Code string

const (
	// CodeSyntax indicates a malformed query. Never retried.
	CodeSyntax Code = "SYNTAX"
	// CodeTimeout indicates the endpoint gave up on the query. Repairable
	// by simplification.
	CodeTimeout Code = "TIMEOUT"
	// CodeRateLimit indicates the endpoint rejected the request with a
	// rate-limit signal (HTTP 429). Repairable by waiting.
	CodeRateLimit Code = "RATE_LIMIT"
	// CodeEmpty marks a successful query with zero rows. Advisory, not a
	// failure; never produced by Classify.
	CodeEmpty Code = "EMPTY"
	// CodeEndpointError indicates a remote 5xx. Surfaced immediately.
	CodeEndpointError Code = "ENDPOINT_ERROR"
	// CodeLinterBlock indicates the query never left the process.
	// Assigned by the pipeline, never produced by Classify.
	CodeLinterBlock Code = "LINTER_BLOCK"
	// CodeUnknown is the fallback for unrecognized failures.
	CodeUnknown Code = "UNKNOWN"
)

// Descriptions maps each code to a short human-readable summary.
var Descriptions = map[Code]string{
	CodeSyntax:        "Query has a syntax error",
	CodeTimeout:       "Query execution timed out",
	CodeRateLimit:     "Endpoint rate-limited the request (HTTP 429)",
	CodeEmpty:         "Query returned zero results",
	CodeEndpointError: "Endpoint returned an HTTP error",
	CodeLinterBlock:   "Query was blocked by the safety linter",
	CodeUnknown:       "Unclassified error",
}

// Classification is the result of classifying one raw failure message.
type Classification struct {
	Code Code   `json:"code"`
	Hint string `json:"hint"`
}

// Keyword vocabularies, checked in order. First match wins.
var (
	syntaxKeywords   = []string{"parse error", "syntax", "malformed", "lexical error"}
	timeoutKeywords  = []string{"timeout", "timed out", "deadline", "too long"}
	rateKeywords     = []string{"429", "rate", "throttl"}
	endpointKeywords = []string{"500", "502", "503", "504"}
)

// hintTruncate bounds how much raw diagnostic text leaks into a hint.
const hintTruncate = 200

// Classify turns a raw endpoint error string into a stable code + hint.
// It always returns a classification; unmatched messages come back as
// CodeUnknown with the truncated original text in the hint.
func Classify(raw string) Classification {
	msg := strings.ToLower(raw)

	if containsAny(msg, syntaxKeywords) {
		return Classification{Code: CodeSyntax, Hint: "Fix the SPARQL syntax and retry."}
	}
	if containsAny(msg, timeoutKeywords) {
		return Classification{Code: CodeTimeout, Hint: "Simplify the query or reduce LIMIT."}
	}
	if containsAny(msg, rateKeywords) {
		return Classification{Code: CodeRateLimit, Hint: "Wait a moment before retrying."}
	}
	if containsAny(msg, endpointKeywords) {
		return Classification{Code: CodeEndpointError, Hint: "The endpoint may be down; retry later."}
	}

	return Classification{Code: CodeUnknown, Hint: "Unexpected error: " + truncate(raw, hintTruncate)}
}

// Repairable reports whether the pipeline has an automatic repair
// strategy for the code.
func Repairable(c Code) bool {
	return c == CodeTimeout || c == CodeRateLimit
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
