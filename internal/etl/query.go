package etl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BartekS5/jira2bq/pkg/database"
)

var (
	ErrNoPlaceholder       = errors.New("query has no parameter placeholder")
	ErrTooManyPlaceholders = errors.New("query must have exactly one parameter placeholder")
	ErrPlaceholderIndex    = errors.New("query placeholder must be the first parameter")
	ErrUnterminatedLiteral = errors.New("query has an unterminated literal or comment")
	ErrUnsupportedDialect  = errors.New("unsupported SQL dialect")
)

// PrepareQuery checks that text holds exactly one parameter slot for dialect and returns
// the query to execute. The psycopg-style %s slot found in older query files is rewritten
// to the dialect's own form ($1, @p1 or ?), with %% unescaped to %.
// String literals, quoted identifiers and comments are never inspected.
func PrepareQuery(dialect database.Dialect, text string) (string, error) {
	var slot string
	switch dialect {
	case database.Postgres:
		slot = "$1"
	case database.SQLServer:
		slot = "@p1"
	case database.MySQL:
		slot = "?"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}

	var (
		out      strings.Builder
		numbered = map[int]bool{}
		unnamed  int
	)

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || (c == '`' && dialect == database.MySQL):
			backslash := dialect == database.MySQL || (c == '\'' && dialect == database.Postgres && escapeStringPrefix(text, i))
			end, ok := skipQuoted(text, i, c, backslash)
			if !ok {
				return "", ErrUnterminatedLiteral
			}
			out.WriteString(text[i:end])
			i = end
		case c == '-' && strings.HasPrefix(text[i:], "--"):
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			out.WriteString(text[i : i+end])
			i += end
		case c == '/' && strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return "", ErrUnterminatedLiteral
			}
			out.WriteString(text[i : i+2+end+2])
			i += 2 + end + 2
		case c == '%' && strings.HasPrefix(text[i:], "%%"):
			out.WriteByte('%')
			i += 2
		case c == '%' && strings.HasPrefix(text[i:], "%s"):
			out.WriteString(slot)
			unnamed++
			i += 2
		case c == '$' && dialect == database.Postgres:
			if n, width := leadingNumber(text[i+1:]); width > 0 {
				numbered[n] = true
				out.WriteString(text[i : i+1+width])
				i += 1 + width
				continue
			}
			if tag, ok := dollarTag(text[i:]); ok {
				end := strings.Index(text[i+len(tag):], tag)
				if end < 0 {
					return "", ErrUnterminatedLiteral
				}
				stop := i + len(tag) + end + len(tag)
				out.WriteString(text[i:stop])
				i = stop
				continue
			}
			out.WriteByte(c)
			i++
		case c == '@' && dialect == database.SQLServer && i+1 < len(text) && (text[i+1] == 'p' || text[i+1] == 'P'):
			if n, width := leadingNumber(text[i+2:]); width > 0 {
				numbered[n] = true
				out.WriteString(text[i : i+2+width])
				i += 2 + width
				continue
			}
			out.WriteByte(c)
			i++
		case c == '?' && dialect == database.MySQL:
			unnamed++
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}

	switch slots := len(numbered) + unnamed; {
	case slots == 0:
		return "", ErrNoPlaceholder
	case slots > 1:
		return "", fmt.Errorf("%w, found %d", ErrTooManyPlaceholders, slots)
	case len(numbered) == 1 && !numbered[1]:
		return "", ErrPlaceholderIndex
	}
	return out.String(), nil
}

// escapeStringPrefix reports whether the quote at i opens a Postgres E'...' string.
func escapeStringPrefix(text string, i int) bool {
	if i == 0 || (text[i-1] != 'E' && text[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(text[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// skipQuoted returns the index just past the literal opened by quote at start.
// A doubled quote is an escaped quote; MySQL and Postgres E'' strings also allow backslash escapes.
func skipQuoted(text string, start int, quote byte, backslash bool) (int, bool) {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			if backslash {
				i++
			}
		case quote:
			if i+1 < len(text) && text[i+1] == quote {
				i++
				continue
			}
			return i + 1, true
		}
	}
	return 0, false
}

func leadingNumber(s string) (int, int) {
	width := 0
	for width < len(s) && s[width] >= '0' && s[width] <= '9' {
		width++
	}
	if width == 0 {
		return 0, 0
	}
	n, err := strconv.Atoi(s[:width])
	if err != nil {
		return 0, 0
	}
	return n, width
}

// dollarTag matches the opening tag of a Postgres dollar-quoted string: $$ or $tag$.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1], true
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 1 && c >= '0' && c <= '9'):
		default:
			return "", false
		}
	}
	return "", false
}
