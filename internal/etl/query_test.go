package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BartekS5/jira2bq/pkg/database"
)

func TestPrepareQuery(t *testing.T) {
	type _tc struct {
		name     string
		dialect  database.Dialect
		query    string
		expected string
		err      error
	}

	tcs := []_tc{
		{
			name:     "postgres numbered slot",
			dialect:  database.Postgres,
			query:    "SELECT * FROM jiraissue WHERE project = $1",
			expected: "SELECT * FROM jiraissue WHERE project = $1",
		},
		{
			name:     "postgres slot used twice is one slot",
			dialect:  database.Postgres,
			query:    "SELECT * FROM issues WHERE key = $1 OR parent_key = $1",
			expected: "SELECT * FROM issues WHERE key = $1 OR parent_key = $1",
		},
		{
			name:     "legacy %s rewritten for postgres",
			dialect:  database.Postgres,
			query:    "SELECT id, summary FROM issues i JOIN project p ON p.id = i.project WHERE p.pkey = %s AND i.votes %% 2 = 0",
			expected: "SELECT id, summary FROM issues i JOIN project p ON p.id = i.project WHERE p.pkey = $1 AND i.votes % 2 = 0",
		},
		{
			name:     "legacy %s rewritten for sqlserver",
			dialect:  database.SQLServer,
			query:    "SELECT * FROM issues WHERE pkey = %s",
			expected: "SELECT * FROM issues WHERE pkey = @p1",
		},
		{
			name:     "legacy %s rewritten for mysql",
			dialect:  database.MySQL,
			query:    "SELECT * FROM issues WHERE pkey = %s",
			expected: "SELECT * FROM issues WHERE pkey = ?",
		},
		{
			name:     "sqlserver named slot",
			dialect:  database.SQLServer,
			query:    "SELECT * FROM issues WHERE pkey = @P1",
			expected: "SELECT * FROM issues WHERE pkey = @P1",
		},
		{
			name:     "literals, identifiers and comments are skipped",
			dialect:  database.Postgres,
			query:    "SELECT 'costs $2 or %s' AS \"col $3\", $tag$ $4 $tag$ -- $5\nFROM t /* $6 */ WHERE k = $1",
			expected: "SELECT 'costs $2 or %s' AS \"col $3\", $tag$ $4 $tag$ -- $5\nFROM t /* $6 */ WHERE k = $1",
		},
		{
			name:     "jsonb ? operator is not a slot in postgres",
			dialect:  database.Postgres,
			query:    "SELECT * FROM issues WHERE labels ? 'bug' AND pkey = $1",
			expected: "SELECT * FROM issues WHERE labels ? 'bug' AND pkey = $1",
		},
		{
			name:     "postgres escape string with backslash quote",
			dialect:  database.Postgres,
			query:    `SELECT E'it\'s $2' AS note, e'\\' FROM t WHERE k = $1`,
			expected: `SELECT E'it\'s $2' AS note, e'\\' FROM t WHERE k = $1`,
		},
		{
			name:    "postgres plain string keeps standard quoting",
			dialect: database.Postgres,
			query:   `SELECT 'C:\' AS dir, CASE WHEN x THEN 'a' ELSE'b' END FROM t WHERE k = $1 AND name = 'it\'s'`,
			err:     ErrUnterminatedLiteral,
		},
		{
			name:     "mysql backslash escape in literal",
			dialect:  database.MySQL,
			query:    `SELECT 'it\'s ?' FROM t WHERE k = ?`,
			expected: `SELECT 'it\'s ?' FROM t WHERE k = ?`,
		},
		{
			name:    "no slot",
			dialect: database.Postgres,
			query:   "SELECT * FROM issues",
			err:     ErrNoPlaceholder,
		},
		{
			name:    "two slots",
			dialect: database.Postgres,
			query:   "SELECT * FROM issues WHERE a = $1 AND b = $2",
			err:     ErrTooManyPlaceholders,
		},
		{
			name:    "two mysql slots",
			dialect: database.MySQL,
			query:   "SELECT * FROM issues WHERE a = ? AND b = ?",
			err:     ErrTooManyPlaceholders,
		},
		{
			name:    "mixed styles",
			dialect: database.Postgres,
			query:   "SELECT * FROM issues WHERE a = $1 AND b = %s",
			err:     ErrTooManyPlaceholders,
		},
		{
			name:    "wrong index",
			dialect: database.Postgres,
			query:   "SELECT * FROM issues WHERE a = $2",
			err:     ErrPlaceholderIndex,
		},
		{
			name:    "unterminated literal",
			dialect: database.Postgres,
			query:   "SELECT 'oops FROM issues WHERE a = $1",
			err:     ErrUnterminatedLiteral,
		},
		{
			name:    "unterminated comment",
			dialect: database.Postgres,
			query:   "SELECT 1 /* WHERE a = $1",
			err:     ErrUnterminatedLiteral,
		},
		{
			name:    "unknown dialect",
			dialect: database.Dialect("oracle"),
			query:   "SELECT * FROM issues WHERE a = :1",
			err:     ErrUnsupportedDialect,
		},
	}

	for _, tc := range tcs {
		actual, err := PrepareQuery(tc.dialect, tc.query)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.name)
			continue
		}

		assert.NoError(t, err, tc.name)
		assert.Equal(t, tc.expected, actual, tc.name)
	}
}
