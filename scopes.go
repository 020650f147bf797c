package rockoauth

import (
	"sort"
	"strings"
)

// Scopes are opaque, case-sensitive tokens. Sets are kept deduplicated and
// sorted so serialized forms are stable regardless of request ordering.

// ParseScope splits a space-delimited scope string into a normalized set
func ParseScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return NormalizeScopes(strings.Fields(scope))
}

// FormatScope renders a scope set as a space-delimited string with stable
// (sorted) ordering.
func FormatScope(scopes []string) string {
	return strings.Join(NormalizeScopes(scopes), " ")
}

// NormalizeScopes deduplicates, drops empty entries, and sorts
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// unionScopes merges two scope sets and reports whether the union differs
// from the existing set. Re-granting an already-held scope is a no-op.
func unionScopes(existing, requested []string) (merged []string, changed bool) {
	merged = NormalizeScopes(append(append([]string(nil), existing...), requested...))
	if len(merged) != len(existing) {
		return merged, true
	}
	// Same length: existing is normalized on write, so compare elementwise
	norm := NormalizeScopes(existing)
	for i := range merged {
		if merged[i] != norm[i] {
			return merged, true
		}
	}
	return merged, false
}

// missingScopes returns the required scopes absent from the granted set
func missingScopes(granted, required []string) []string {
	held := make(map[string]bool, len(granted))
	for _, s := range granted {
		held[s] = true
	}
	var missing []string
	for _, s := range NormalizeScopes(required) {
		if !held[s] {
			missing = append(missing, s)
		}
	}
	return missing
}
