package secrets

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSResolver reads secrets stored as Cloud Storage objects. The client is created
// on first use so that runs which never reference gs:// do no GCP I/O.
type GCSResolver struct {
	Options []option.ClientOption

	once   sync.Once
	client *storage.Client
	err    error
}

func (g *GCSResolver) Resolve(ctx context.Context, ref string) (string, error) {
	bucket, object, err := ParseGCSPath(ref)
	if err != nil {
		return "", err
	}

	g.once.Do(func() {
		g.client, g.err = storage.NewClient(ctx, g.Options...)
	})
	if g.err != nil {
		return "", fmt.Errorf("create GCS client: %w", g.err)
	}

	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open secret object %q: %w", ref, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read secret object %q: %w", ref, err)
	}
	return nonEmpty(string(data))
}

func (g *GCSResolver) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// ParseGCSPath splits "gs://bucket/path/to/object" into bucket and object name.
func ParseGCSPath(path string) (string, string, error) {
	rest, ok := strings.CutPrefix(path, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// path: %q", path)
	}

	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// path must name a bucket and an object: %q", path)
	}
	return bucket, object, nil
}
