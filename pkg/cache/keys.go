package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeQuery collapses all whitespace runs to single spaces so that
// cosmetically different but semantically identical query texts share
// one cache key. "SELECT ?x  WHERE { ... }" and "SELECT ?x\nWHERE { ... }"
// become the same string.
func NormalizeQuery(query string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(query), " ")
}

// MakeKey builds a deterministic cache key from arbitrary parts.
// Parts are joined with a separator before hashing so that
// ("ab","c") and ("a","bc") produce different keys.
func MakeKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
