package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_InjectsMissingLimit(t *testing.T) {
	res := Lint("SELECT ?x WHERE { ?x a <T> }", Options{LimitCap: 200})

	assert.True(t, res.OK)
	assert.True(t, strings.HasSuffix(res.Query, "LIMIT 200"))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Injected LIMIT 200")
}

func TestLint_CapsExcessiveLimit(t *testing.T) {
	query := "SELECT ?x WHERE { ?x a <T> }\nLIMIT 5000"
	res := Lint(query, Options{LimitCap: 200})

	assert.True(t, res.OK)
	// Only the numeral changes; all other text is byte-identical
	assert.Equal(t, strings.Replace(query, "5000", "200", 1), res.Query)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Capped LIMIT from 5000 to 200")
}

func TestLint_LimitWithinCapUntouched(t *testing.T) {
	query := "SELECT ?x WHERE { ?x a <T> } LIMIT 50"
	res := Lint(query, Options{LimitCap: 200})

	assert.True(t, res.OK)
	assert.Equal(t, query, res.Query)
	assert.Empty(t, res.Warnings)
}

func TestLint_Idempotent(t *testing.T) {
	first := Lint("SELECT ?x WHERE { ?x a <T> }", Options{LimitCap: 200})
	require.True(t, first.OK)

	second := Lint(first.Query, Options{LimitCap: 200})
	assert.True(t, second.OK)
	assert.Equal(t, first.Query, second.Query)
	assert.Empty(t, second.Warnings)
	assert.Empty(t, second.Errors)
}

func TestLint_BlocksScopeConstructs(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"from named", "SELECT ?x FROM NAMED <http://g> WHERE { ?x a <T> } LIMIT 10"},
		{"from iri", "SELECT ?x FROM <http://g> WHERE { ?x a <T> } LIMIT 10"},
		{"graph var", "SELECT ?x WHERE { GRAPH ?g { ?x a <T> } } LIMIT 10"},
		{"graph iri", "SELECT ?x WHERE { GRAPH <http://g> { ?x a <T> } } LIMIT 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Lint(tt.query, Options{})
			assert.False(t, res.OK)
			assert.NotEmpty(t, res.Errors)
			assert.Contains(t, res.Blocked, RuleBlockedScope)
		})
	}
}

func TestLint_BlocksUnboundedPaths(t *testing.T) {
	res := Lint("SELECT ?x WHERE { ?x wdt:P279* wd:Q5 } LIMIT 10", Options{})

	assert.False(t, res.OK)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, strings.ToLower(res.Errors[0]), "unbounded property path")
	assert.Contains(t, res.Blocked, RuleUnboundedPath)
}

func TestLint_BlocksPlusModifier(t *testing.T) {
	res := Lint("SELECT ?x WHERE { ?x (rh:a|rh:b)+ ?y } LIMIT 10", Options{})
	assert.False(t, res.OK)
	assert.Contains(t, res.Blocked, RuleUnboundedPath)
}

func TestLint_StarInsideStringLiteralAllowed(t *testing.T) {
	// The same marker inside a string literal must not block
	res := Lint(`SELECT ?x WHERE { ?x <p> ?v . FILTER(?v = "10*2") } LIMIT 10`, Options{})
	assert.True(t, res.OK, "errors: %v", res.Errors)
}

func TestLint_CountStarAllowed(t *testing.T) {
	res := Lint("SELECT (COUNT(*) AS ?c) WHERE { ?x a <T> } LIMIT 10", Options{})
	assert.True(t, res.OK, "errors: %v", res.Errors)
}

func TestLint_ServiceAllowList(t *testing.T) {
	allowed := `SELECT ?x ?xLabel WHERE {
  ?x a <T> .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 10`
	res := Lint(allowed, Options{})
	assert.True(t, res.OK, "errors: %v", res.Errors)

	blocked := `SELECT ?x WHERE { SERVICE <http://other/sparql> { ?x a <T> } } LIMIT 10`
	res = Lint(blocked, Options{})
	assert.False(t, res.OK)
	assert.Contains(t, res.Blocked, RuleService)
}

func TestLint_MixedServicesBlocked(t *testing.T) {
	query := `SELECT ?x WHERE {
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
  SERVICE <http://other> { ?x a <T> }
} LIMIT 10`
	res := Lint(query, Options{})
	assert.False(t, res.OK)
}

func TestLint_GroundingRequired_EmptySet(t *testing.T) {
	res := Lint("SELECT ?x WHERE { wd:Q42 wdt:P31 ?x } LIMIT 10", Options{
		RequireGrounding: true,
	})

	assert.False(t, res.OK)
	assert.Contains(t, res.Blocked, RuleGrounding)

	joined := strings.Join(res.Errors, " ")
	assert.Contains(t, joined, "Q42")
	assert.Contains(t, joined, "entity search")
	assert.Contains(t, joined, "P31")
	assert.Contains(t, joined, "property search")
}

func TestLint_GroundingRequired_SupersetPasses(t *testing.T) {
	res := Lint("SELECT ?x WHERE { wd:Q42 wdt:P31 ?x } LIMIT 10", Options{
		RequireGrounding: true,
		Entities:         NewIDSet([]string{"Q42", "Q5"}),
		Properties:       NewIDSet([]string{"P31", "P279"}),
	})
	assert.True(t, res.OK, "errors: %v", res.Errors)
}

func TestLint_GroundingRequired_UnknownIDBlocked(t *testing.T) {
	res := Lint("SELECT ?x WHERE { wd:Q42 wdt:P31 ?x . wd:Q999 wdt:P31 ?x } LIMIT 10", Options{
		RequireGrounding: true,
		Entities:         NewIDSet([]string{"Q42"}),
		Properties:       NewIDSet([]string{"P31"}),
	})

	assert.False(t, res.OK)
	joined := strings.Join(res.Errors, " ")
	assert.Contains(t, joined, "Q999")
	assert.NotContains(t, joined, "Q42,")
}

func TestLint_GroundingNotRequired(t *testing.T) {
	// Ungrounded endpoint classes skip the rule entirely
	res := Lint("SELECT ?x WHERE { wd:Q42 wdt:P31 ?x } LIMIT 10", Options{})
	assert.True(t, res.OK, "errors: %v", res.Errors)
}

func TestLint_PropertyPrefixShapes(t *testing.T) {
	query := "SELECT ?x WHERE { wd:Q1 p:P10 ?s . ?s ps:P10 ?x . ?s pq:P20 ?q } LIMIT 5"
	res := Lint(query, Options{
		RequireGrounding: true,
		Entities:         NewIDSet([]string{"Q1"}),
		Properties:       NewIDSet([]string{"P10"}),
	})

	assert.False(t, res.OK)
	assert.Contains(t, strings.Join(res.Errors, " "), "P20")
}

func TestLint_LabelServiceLargeLimitWarns(t *testing.T) {
	query := `SELECT ?x ?xLabel WHERE {
  ?x a <T> .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 200`
	res := Lint(query, Options{LabelServiceLimit: 50})

	assert.True(t, res.OK)
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "may cause timeouts") {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", res.Warnings)
}

func TestLint_TripleCountWarning(t *testing.T) {
	var b strings.Builder
	b.WriteString("SELECT * WHERE {\n")
	for i := 0; i < 15; i++ {
		b.WriteString("  ?a <p> ?b .\n")
	}
	b.WriteString("} LIMIT 10")

	res := Lint(b.String(), Options{MaxTriples: 12})
	assert.True(t, res.OK)

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "triple patterns") {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", res.Warnings)
}

func TestLint_ScenarioEndsWithLimit200(t *testing.T) {
	res := Lint("SELECT ?x WHERE { ?x a <T> }", Options{LimitCap: 200})
	assert.True(t, strings.HasSuffix(res.Query, "LIMIT 200"))
}

func TestIDSet(t *testing.T) {
	s := NewIDSet([]string{"Q1", "", "Q2"})
	assert.True(t, s.Contains("Q1"))
	assert.False(t, s.Contains(""))
	assert.False(t, s.Contains("Q3"))
	assert.Nil(t, NewIDSet(nil))
	assert.False(t, IDSet(nil).Contains("Q1"))
}
