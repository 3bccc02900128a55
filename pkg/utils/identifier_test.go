package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	for input, expected := range map[string]string{
		"id":            "id",
		"issueKey":      "issue_key",
		"HTTPStatus":    "http_status",
		"Issue Key":     "issue_key",
		"created.at":    "created_at",
		"project-key":   "project_key",
		"1st_response":  "_1st_response",
		"_dlt_id":       "_dlt_id",
		"summary__text": "summary_text",
		"ID":            "id",
		"?":             "_",
	} {
		assert.Equal(t, expected, NormalizeIdentifier(input), input)
	}

	assert.Len(t, NormalizeIdentifier(strings.Repeat("a", 400)), 300)
}
