// Package util provides small helpers shared across the library.
package util

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging token or code prefixes, where only enough of the value
// to correlate debug output should ever appear.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
