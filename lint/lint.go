// Package lint provides static safety checks for SPARQL query text
// before it is allowed anywhere near a remote endpoint.
//
// This is deliberately NOT a SPARQL parser. The checks are structural
// pattern matches: fast, approximate, and honest about it. They carry
// both false-positive risk (legitimate text that looks like a dangerous
// construct) and false-negative risk (cleverly obfuscated unbounded
// paths). That trade-off is accepted; the linter is a cheap safety gate,
// not a grammar.
package lint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule identifies a blocking linter rule, used for metrics and
// structured reporting.
type Rule string

const (
	// RuleBlockedScope rejects explicit FROM / FROM NAMED / GRAPH clauses.
	RuleBlockedScope Rule = "blocked_scope"
	// RuleUnboundedPath rejects * / + property-path modifiers.
	RuleUnboundedPath Rule = "unbounded_path"
	// RuleService rejects SERVICE clauses outside the allow-list.
	RuleService Rule = "service"
	// RuleGrounding rejects identifiers that were never grounded.
	RuleGrounding Rule = "grounding"
)

// Options configures a lint pass.
type Options struct {
	// LimitCap is the maximum LIMIT allowed; queries without a LIMIT get
	// this value injected.
	LimitCap int

	// MaxTriples is the soft triple-pattern count threshold. Exceeding it
	// produces a warning, never a block.
	MaxTriples int

	// LabelServiceLimit is the LIMIT above which using the label service
	// draws a timeout warning.
	LabelServiceLimit int

	// RequireGrounding enables the mandatory grounding rule: any
	// entity-shaped or property-shaped identifier in the query must
	// appear in the corresponding set below.
	RequireGrounding bool

	// Entities and Properties are the grounding sets: identifiers the
	// caller obtained from the grounding lookups.
	Entities   IDSet
	Properties IDSet
}

// defaults mirrors the configured caps used across endpoint classes.
func (o *Options) defaults() {
	if o.LimitCap <= 0 {
		o.LimitCap = 200
	}
	if o.MaxTriples <= 0 {
		o.MaxTriples = 12
	}
	if o.LabelServiceLimit <= 0 {
		o.LabelServiceLimit = 50
	}
}

// Result is the outcome of one lint pass. OK is true exactly when
// Errors is empty; a query with OK=false must never reach the network.
type Result struct {
	OK       bool     `json:"ok"`
	Query    string   `json:"query"` // possibly rewritten (LIMIT injected/capped)
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	Blocked  []Rule   `json:"-"` // rules that produced errors, for metrics
}

// IDSet is a set of grounded identifiers (QIDs or PIDs).
type IDSet map[string]struct{}

// NewIDSet builds an IDSet from a slice of identifiers.
func NewIDSet(ids []string) IDSet {
	if len(ids) == 0 {
		return nil
	}
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports set membership. A nil set contains nothing.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

var (
	// Blocked scope constructs: explicit named default graphs and
	// graph-selection clauses are out of policy regardless of validity.
	blockedScopeRe = regexp.MustCompile(`(?i)\b(FROM\s+NAMED|FROM\s+<|GRAPH\s+[?<])`)

	// Unbounded property paths: * or + immediately after a word char,
	// '>' or ')'. COUNT(*) is safe because '*' follows '(' there.
	unboundedPathRe = regexp.MustCompile(`[\w>)][*+]`)

	serviceRe      = regexp.MustCompile(`(?i)\bSERVICE\b`)
	labelServiceRe = regexp.MustCompile(`(?i)SERVICE\s+wikibase:label`)

	// Identifier shapes recognized by the grounding rule.
	entityIDRe   = regexp.MustCompile(`\bwd:(Q\d+)\b`)
	propertyIDRe = regexp.MustCompile(`\b(?:wdt|p|ps|pq):(P\d+)\b`)

	// Rough triple-pattern counter for the complexity heuristic.
	triplePatternRe = regexp.MustCompile(`\?\w+\s+\S+\s+\S+`)
)

// Lint checks a SPARQL query against the safety rules and returns the
// (possibly rewritten) query plus accumulated warnings and errors.
//
// Rules, in order:
//  1. LIMIT enforcement: inject if missing, cap if too high
//  2. Block FROM / FROM NAMED / GRAPH
//  3. Block unbounded property paths (* / +), after stripping string
//     literals to avoid false positives on text like "10*2"
//  4. Allow only SERVICE wikibase:label; block all other SERVICE
//  5. Mandatory grounding: every wd:Q… / wdt:P… style identifier must
//     come from the supplied grounding sets (when required)
//  6. Warn on label service with a large LIMIT
//  7. Warn on high triple-pattern count
func Lint(query string, opts Options) Result {
	opts.defaults()

	var warnings, errs []string
	var blocked []Rule
	q := strings.TrimSpace(query)

	// ---- LIMIT enforcement ----
	if limit, ok := Limit(q); !ok {
		q = WithLimit(q, opts.LimitCap)
		warnings = append(warnings, fmt.Sprintf("Injected LIMIT %d (was missing).", opts.LimitCap))
	} else if limit > opts.LimitCap {
		q = WithLimit(q, opts.LimitCap)
		warnings = append(warnings, fmt.Sprintf("Capped LIMIT from %d to %d.", limit, opts.LimitCap))
	}

	// ---- Blocked scope constructs ----
	if blockedScopeRe.MatchString(q) {
		errs = append(errs, "Query uses FROM / FROM NAMED / GRAPH. These are blocked.")
		blocked = append(blocked, RuleBlockedScope)
	}

	// ---- Unbounded property paths ----
	// String literal contents are stripped first so characters inside
	// quotes cannot trigger a false positive.
	if unboundedPathRe.MatchString(stripStringLiterals(q)) {
		errs = append(errs,
			"Unbounded property path (* or +) detected. "+
				"Use a fixed-length path instead (e.g. wdt:P31/wdt:P279 instead of wdt:P279*).")
		blocked = append(blocked, RuleUnboundedPath)
	}

	// ---- SERVICE allow-list ----
	allServices := len(serviceRe.FindAllStringIndex(q, -1))
	allowedServices := len(labelServiceRe.FindAllStringIndex(q, -1))
	if allServices > allowedServices {
		errs = append(errs,
			"Only SERVICE wikibase:label is allowed. Other SERVICE clauses are blocked for safety.")
		blocked = append(blocked, RuleService)
	}

	// ---- Mandatory grounding ----
	if opts.RequireGrounding {
		if groundingErrs := checkGrounding(q, opts); len(groundingErrs) > 0 {
			errs = append(errs, groundingErrs...)
			blocked = append(blocked, RuleGrounding)
		}
	}

	// ---- Label service + large LIMIT warning ----
	effLimit := opts.LimitCap
	if limit, ok := Limit(q); ok {
		effLimit = limit
	}
	if HasLabelService(q) && effLimit > opts.LabelServiceLimit {
		warnings = append(warnings, fmt.Sprintf(
			"SERVICE wikibase:label with LIMIT %d may cause timeouts. "+
				"Consider removing it or reducing LIMIT to <= %d.",
			effLimit, opts.LabelServiceLimit))
	}

	// ---- Triple-pattern count heuristic ----
	if n := len(triplePatternRe.FindAllString(q, -1)); n > opts.MaxTriples {
		warnings = append(warnings, fmt.Sprintf(
			"Query has ~%d triple patterns (soft limit %d). Consider simplifying if it times out.",
			n, opts.MaxTriples))
	}

	return Result{
		OK:       len(errs) == 0,
		Query:    q,
		Warnings: warnings,
		Errors:   errs,
		Blocked:  blocked,
	}
}

// checkGrounding enforces that every entity/property identifier in the
// query came out of a grounding lookup. Referencing identifiers with an
// empty grounding set is a hard block: that is how hallucinated IDs are
// kept off the endpoint.
func checkGrounding(q string, opts Options) []string {
	var errs []string

	usedEntities := findIDs(entityIDRe, q)
	usedProperties := findIDs(propertyIDRe, q)

	if len(usedEntities) > 0 {
		if len(opts.Entities) == 0 {
			errs = append(errs, fmt.Sprintf(
				"Query references entity IDs (%s) but no grounded entities were provided. "+
					"Run the entity search first and pass its results.",
				strings.Join(usedEntities, ", ")))
		} else if bad := missingFrom(usedEntities, opts.Entities); len(bad) > 0 {
			errs = append(errs, fmt.Sprintf(
				"Entity IDs not returned by grounding lookups: %s. Run the entity search first.",
				strings.Join(bad, ", ")))
		}
	}

	if len(usedProperties) > 0 {
		if len(opts.Properties) == 0 {
			errs = append(errs, fmt.Sprintf(
				"Query references property IDs (%s) but no grounded properties were provided. "+
					"Run the property search first and pass its results.",
				strings.Join(usedProperties, ", ")))
		} else if bad := missingFrom(usedProperties, opts.Properties); len(bad) > 0 {
			errs = append(errs, fmt.Sprintf(
				"Property IDs not returned by grounding lookups: %s. Run the property search first.",
				strings.Join(bad, ", ")))
		}
	}

	return errs
}

// findIDs returns the sorted, deduplicated capture groups of re in q.
func findIDs(re *regexp.Regexp, q string) []string {
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(q, -1) {
		seen[m[1]] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// missingFrom returns the ids not present in the set, preserving order.
func missingFrom(ids []string, set IDSet) []string {
	var bad []string
	for _, id := range ids {
		if !set.Contains(id) {
			bad = append(bad, id)
		}
	}
	return bad
}

var (
	tripleDoubleQuoteRe = regexp.MustCompile(`(?s)""".*?"""`)
	tripleSingleQuoteRe = regexp.MustCompile(`(?s)'''.*?'''`)
	doubleQuoteRe       = regexp.MustCompile(`"[^"\\]*(?:\\.[^"\\]*)*"`)
	singleQuoteRe       = regexp.MustCompile(`'[^'\\]*(?:\\.[^'\\]*)*'`)
)

// stripStringLiterals removes the contents of string literals so that
// regex safety checks cannot false-positive on quoted text, e.g.
// FILTER(?x = "10*2") becomes FILTER(?x = ""). Only used for linting;
// the real query is left untouched.
func stripStringLiterals(q string) string {
	// Triple-quoted strings first (rare but legal SPARQL)
	q = tripleDoubleQuoteRe.ReplaceAllString(q, `""`)
	q = tripleSingleQuoteRe.ReplaceAllString(q, `''`)
	// Then normal quoted strings, honoring escaped characters
	q = doubleQuoteRe.ReplaceAllString(q, `""`)
	q = singleQuoteRe.ReplaceAllString(q, `''`)
	return q
}
