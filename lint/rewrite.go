package lint

import (
	"regexp"
	"strconv"
	"strings"
)

// Query rewriting helpers shared by the linter and the pipeline's
// repair steps. Every rewrite re-locates its target span in the current
// text; offsets are never carried between rewrites, so composed repairs
// cannot corrupt each other.

var (
	limitRe            = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	labelServiceBlockRe = regexp.MustCompile(`(?is)SERVICE\s+wikibase:label\s*\{[^}]*\}\s*\.?`)
)

// Limit extracts the numeric LIMIT value from a query. The second
// return is false when no LIMIT clause is present.
func Limit(q string) (int, bool) {
	m := limitRe.FindStringSubmatch(q)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// WithLimit returns the query with its LIMIT set to n. If a LIMIT
// clause exists, only its numeral is replaced in place, preserving all
// surrounding text; otherwise a LIMIT clause is appended.
func WithLimit(q string, n int) string {
	loc := limitRe.FindStringSubmatchIndex(q)
	if loc == nil {
		return strings.TrimRight(strings.TrimSpace(q), ";") + "\nLIMIT " + strconv.Itoa(n)
	}
	// loc[2]:loc[3] is the span of the numeric capture group
	return q[:loc[2]] + strconv.Itoa(n) + q[loc[3]:]
}

// HalveLimit returns the query with its LIMIT halved (minimum 1) and
// the new value. Queries without a LIMIT are returned unchanged with
// ok=false.
func HalveLimit(q string) (string, int, bool) {
	limit, ok := Limit(q)
	if !ok || limit <= 1 {
		return q, 0, false
	}
	halved := limit / 2
	if halved < 1 {
		halved = 1
	}
	return WithLimit(q, halved), halved, true
}

// HasLabelService reports whether the query contains the allow-listed
// SERVICE wikibase:label clause.
func HasLabelService(q string) bool {
	return labelServiceRe.MatchString(q)
}

// StripLabelService removes the SERVICE wikibase:label { ... } block.
// Used by the repair loop when the label service is suspected of
// causing timeouts on large result sets.
func StripLabelService(q string) string {
	return strings.TrimSpace(labelServiceBlockRe.ReplaceAllString(q, ""))
}
