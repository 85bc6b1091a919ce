package utils

import (
	"strconv"
	"strings"
)

// ParseLenientFloat parses free-text operator input into a float64.
// Commas are accepted as decimal separators and surrounding whitespace is
// ignored. Empty or unparseable input yields the fallback (callers that need
// strict validation must validate before calling the ledger core).
func ParseLenientFloat(s string, fallback float64) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// ParseLenientInt parses free-text operator input into an int64 with the same
// tolerance as ParseLenientFloat; fractional input is truncated toward zero.
func ParseLenientInt(s string, fallback int64) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return int64(v)
}
