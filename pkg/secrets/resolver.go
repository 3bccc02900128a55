// Package secrets resolves secret references into credential strings.
//
// A reference is either a literal value (for example a database URL) or one of
//
//	env://NAME            value of the environment variable NAME
//	file:///path/to/file  contents of a local file
//	gs://bucket/object    contents of a Cloud Storage object
//
// Trailing whitespace is trimmed from every resolved value.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var ErrEmptySecret = errors.New("secret resolved to an empty value")

type EnvResolver struct {
	Lookup func(string) (string, bool)
}

func (e EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	name := strings.TrimPrefix(ref, "env://")
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	val, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", name)
	}
	return nonEmpty(val)
}

type FileResolver struct{}

func (FileResolver) Resolve(_ context.Context, ref string) (string, error) {
	path := strings.TrimPrefix(ref, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %q: %w", path, err)
	}
	return nonEmpty(string(data))
}

// SchemeResolver dispatches on the reference scheme. References without a known
// scheme are returned as-is.
type SchemeResolver struct {
	Env  Resolver
	File Resolver
	GCS  Resolver
}

func NewSchemeResolver(gcs Resolver) *SchemeResolver {
	return &SchemeResolver{
		Env:  EnvResolver{},
		File: FileResolver{},
		GCS:  gcs,
	}
}

func (s *SchemeResolver) Resolve(ctx context.Context, ref string) (string, error) {
	var r Resolver
	switch {
	case strings.HasPrefix(ref, "env://"):
		r = s.Env
	case strings.HasPrefix(ref, "file://"):
		r = s.File
	case strings.HasPrefix(ref, "gs://"):
		r = s.GCS
	default:
		return nonEmpty(ref)
	}

	if r == nil {
		return "", fmt.Errorf("no resolver configured for %q", Scheme(ref))
	}
	return r.Resolve(ctx, ref)
}

// Scheme returns the scheme part of ref, or "" for literal values.
func Scheme(ref string) string {
	idx := strings.Index(ref, "://")
	if idx <= 0 {
		return ""
	}
	return ref[:idx]
}

func nonEmpty(val string) (string, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return "", ErrEmptySecret
	}
	return val, nil
}
