package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	n, ok := Limit("SELECT ?x WHERE { ?x a <T> } LIMIT 25")
	require.True(t, ok)
	assert.Equal(t, 25, n)

	_, ok = Limit("SELECT ?x WHERE { ?x a <T> }")
	assert.False(t, ok)
}

func TestWithLimit_ReplacesOnlyTheNumeral(t *testing.T) {
	q := "SELECT ?x WHERE { ?x a <T> }\nLIMIT 100\n"
	got := WithLimit(q, 50)
	assert.Equal(t, "SELECT ?x WHERE { ?x a <T> }\nLIMIT 50\n", got)
}

func TestWithLimit_AppendsWhenMissing(t *testing.T) {
	got := WithLimit("SELECT ?x WHERE { ?x a <T> }", 10)
	assert.Equal(t, "SELECT ?x WHERE { ?x a <T> }\nLIMIT 10", got)

	// A trailing semicolon must not end up before the clause.
	got = WithLimit("SELECT ?x WHERE { ?x a <T> };", 10)
	assert.Equal(t, "SELECT ?x WHERE { ?x a <T> }\nLIMIT 10", got)
}

func TestHalveLimit(t *testing.T) {
	got, n, ok := HalveLimit("SELECT ?x WHERE { ?x a <T> } LIMIT 100")
	require.True(t, ok)
	assert.Equal(t, 50, n)
	assert.Contains(t, got, "LIMIT 50")
}

func TestHalveLimit_FloorsAtOne(t *testing.T) {
	got, n, ok := HalveLimit("SELECT ?x WHERE { ?x a <T> } LIMIT 3")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Contains(t, got, "LIMIT 1")
}

func TestHalveLimit_NoProgressAtOne(t *testing.T) {
	_, _, ok := HalveLimit("SELECT ?x WHERE { ?x a <T> } LIMIT 1")
	assert.False(t, ok)

	_, _, ok = HalveLimit("SELECT ?x WHERE { ?x a <T> }")
	assert.False(t, ok)
}

func TestStripLabelService(t *testing.T) {
	q := `SELECT ?x ?xLabel WHERE {
  ?x a <T> .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 10`
	require.True(t, HasLabelService(q))

	stripped := StripLabelService(q)
	assert.False(t, HasLabelService(stripped))
	assert.NotContains(t, stripped, "wikibase:label")
	assert.Contains(t, stripped, "?x a <T>")
	assert.Contains(t, stripped, "LIMIT 10")
}

func TestStripLabelService_NoServicePresent(t *testing.T) {
	q := "SELECT ?x WHERE { ?x a <T> } LIMIT 10"
	assert.Equal(t, q, StripLabelService(q))
}
