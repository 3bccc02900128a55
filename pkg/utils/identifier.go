package utils

import (
	"strings"
	"unicode"
)

const maxIdentifierLength = 300

// NormalizeIdentifier turns a source column name into a BigQuery column name:
// snake_case, lowercase ASCII letters, digits and underscores, not starting with a digit.
func NormalizeIdentifier(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	lastUnderscore := false

	writeUnderscore := func() {
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	for i, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			// issueKey -> issue_key, HTTPStatus -> http_status
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1]))) {
				writeUnderscore()
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			writeUnderscore()
		}
	}

	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if len(out) > maxIdentifierLength {
		out = out[:maxIdentifierLength]
	}
	return out
}
