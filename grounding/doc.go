// Package grounding resolves natural-language names to Wikidata entity
// and property IDs before query construction.
//
// Queries against grounded endpoints are only accepted when every wd:Q
// and wdt:P identifier they mention came from a prior grounding lookup.
// The Client wraps the Wikidata action API (wbsearchentities and
// wbgetentities), with per-pool TTL caches and a token-bucket rate
// limit so repeated lookups stay cheap and polite.
package grounding
