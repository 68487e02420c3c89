// Package email holds helpers for applicant email addresses.
package email

import (
	"strings"
	"unicode"
)

// Normalize trims and lowercases an address for comparison and storage.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DeriveName builds a display name from the local part of an address:
// "jane.doe@uni.edu" becomes "Jane Doe". Returns "Applicant" when nothing
// usable is left.
func DeriveName(address string) string {
	local := strings.TrimSpace(address)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimFunc(p, unicode.IsDigit)
		if p == "" {
			continue
		}
		words = append(words, capitalize(p))
	}
	if len(words) == 0 {
		return "Applicant"
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
