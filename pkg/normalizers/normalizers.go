// Package normalizers provides the field normalization used by match-key
// extraction and the gap audit join. Matching is deliberately
// conservative: trim and case-fold only, nothing fuzzier.
package normalizers

import "strings"

// Trim removes leading and trailing whitespace.
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// FoldEmail lower-cases and trims an email for exact comparison.
func FoldEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsBlank reports whether the value is empty after trimming.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// EqualFold compares two values case-insensitively after trimming.
func EqualFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ContainsFold reports whether either trimmed value contains the other,
// case-insensitively. Blank values never match.
func ContainsFold(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
