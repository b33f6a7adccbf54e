// Package textutil cleans user supplied text before it is validated or stored.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText drops control characters, folds the result to NFC and trims
// surrounding whitespace. Newlines survive when multiline is true. Text is
// stored verbatim otherwise; templates escape it on output.
func CleanText(value string, multiline bool) string {
	if value == "" {
		return ""
	}
	value = norm.NFC.String(value)
	value = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' && multiline:
			return r
		case r == '\r':
			return -1
		case r == '\t' || r == '\n':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}

// NormalizeAttributes trims keys and values and drops entries where either is empty.
func NormalizeAttributes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
