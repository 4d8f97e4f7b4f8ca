// Package normalize rewrites volatile identifiers in log messages into
// fixed placeholder tokens so that structurally identical errors group
// under one fingerprint at the destination.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// rule is one identifier category: a pattern, the placeholder substituted
// for every match, and the key prefix used in the extracted-ID map.
type rule struct {
	re          *regexp.Regexp
	placeholder string
	key         string
	// prefixed rules derive placeholder and key from the first submatch
	// (the matched vocabulary prefix, lower-cased).
	prefixed bool
}

// rules run in order. Earlier categories are broader or would otherwise
// collide with later ones; once a substring becomes a placeholder it can no
// longer match a later pattern.
var rules = []rule{
	{re: regexp.MustCompile(`[a-z0-9]{32}`), placeholder: "<convex_id>", key: "convex_id"},
	{re: regexp.MustCompile(`[0-9]{10,}_[0-9]{10,}`), placeholder: "<compound_id>", key: "compound_id"},
	{re: regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), placeholder: "<uuid>", key: "uuid"},
	{re: regexp.MustCompile(`(?i)[0-9a-f]{24}`), placeholder: "<object_id>", key: "object_id"},
	{re: regexp.MustCompile(`(?i)(?:0x|#)[0-9a-f]{6,}`), placeholder: "<hex_id>", key: "hex_id"},
	{re: regexp.MustCompile(`(?i)(user|order|item|session|request|id)[_-][0-9]{3,}`), prefixed: true},
	{re: regexp.MustCompile(`[0-9]{10,}`), placeholder: "<numeric_id>", key: "numeric_id"},
}

// Normalize replaces identifier substrings in text with placeholder tokens
// and returns the rewritten text plus a map from generated keys
// ("<category>_<n>", n counted across all categories within this call)
// to the original substrings. Total over any input; a string with no
// matches comes back unchanged with an empty map.
func Normalize(text string) (string, map[string]string) {
	ids := make(map[string]string)
	counter := 0
	for _, r := range rules {
		text = applyRule(text, r, ids, &counter)
	}
	return text, ids
}

func applyRule(text string, r rule, ids map[string]string, counter *int) string {
	matches := r.re.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !wholeWord(text, start, end) {
			continue
		}
		placeholder, key := r.placeholder, r.key
		if r.prefixed {
			// one casing policy: the matched prefix is lower-cased in
			// both the replacement token and the map key
			prefix := strings.ToLower(text[m[2]:m[3]])
			placeholder = prefix + "_<id>"
			key = prefix + "_id"
		}
		*counter++
		ids[fmt.Sprintf("%s_%d", key, *counter)] = text[start:end]
		b.WriteString(text[last:start])
		b.WriteString(placeholder)
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// wholeWord reports whether the match at [start,end) is bounded by
// non-alphanumeric characters or string edges. RE2 has no lookbehind, so
// boundaries are checked here instead of in the patterns.
func wholeWord(s string, start, end int) bool {
	if start > 0 && isAlnum(s[start-1]) {
		return false
	}
	if end < len(s) && isAlnum(s[end]) {
		return false
	}
	return true
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
