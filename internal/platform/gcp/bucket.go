package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// ErrObjectNotFound is returned by Open for a missing source object.
var ErrObjectNotFound = errors.New("gcs object not found")

// BucketReader opens source objects under a prefix of one bucket.
type BucketReader struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewBucketReader(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (*BucketReader, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	r := &BucketReader{
		log:    log.With("service", "BucketReader"),
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}
	r.log.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", r.bucket,
		"prefix", r.prefix,
	)
	return r, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg)
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		// The storage client reads the emulator address from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
		}
	}
}

// Key returns the object key for a source name.
func (r *BucketReader) Key(name string) string {
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

// Open streams one object. The caller closes the reader.
func (r *BucketReader) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := r.Key(name)
	rc, err := r.client.Bucket(r.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", r.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", r.bucket, key, err)
	}
	return rc, nil
}

// List returns the source names available under the prefix.
func (r *BucketReader) List(ctx context.Context) ([]string, error) {
	q := &storage.Query{}
	if r.prefix != "" {
		q.Prefix = r.prefix + "/"
	}
	it := r.client.Bucket(r.bucket).Objects(ctx, q)
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", r.bucket, r.prefix, err)
		}
		out = append(out, strings.TrimPrefix(attrs.Name, q.Prefix))
	}
	return out, nil
}

func (r *BucketReader) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
