// Package dedup classifies, groups and merges duplicate leads.
//
// Everything here is pure and synchronous: each call gets its full input and
// returns a fresh result, so callers may run it concurrently on different data.
package dedup

import "strings"

// keySeparator joins key components so "ab"+"c" and "a"+"bc" differ.
const keySeparator = "||"

// Normalize canonicalizes a free-text field for comparison: every run of
// Unicode whitespace (including the ideographic space U+3000) becomes one
// ASCII space, the result is trimmed and lowercased.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// BuildKey returns the exact-match key for a business name and road address.
// A non-empty business registration id, when given, is appended as a third
// component.
func BuildKey(businessName, roadAddress string, bizID ...string) string {
	key := Normalize(businessName) + keySeparator + Normalize(roadAddress)
	if len(bizID) > 0 && bizID[0] != "" {
		key += keySeparator + Normalize(bizID[0])
	}
	return key
}
