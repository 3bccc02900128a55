package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrEmptyQuery = errors.New("query file is empty")

// LoadQuery reads the SQL text file holding the extraction query.
func LoadQuery(filePath string) (string, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read query file '%s': %w", filePath, err)
	}

	query := strings.TrimSpace(string(bytes))
	if query == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyQuery, filePath)
	}
	return query, nil
}
