// Package s3store reads source objects from an S3-compatible bucket such as
// MinIO.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// ErrObjectNotFound is returned by Open for a missing source object.
var ErrObjectNotFound = errors.New("s3 object not found")

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("s3store: S3_ENDPOINT is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("s3store: SOURCE_BUCKET is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("s3store: S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
	}
	return nil
}

type Reader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Logger
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		// MinIO serves buckets as path segments.
		o.UsePathStyle = true
	})
	r := &Reader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log.With("service", "S3Reader"),
	}
	r.log.Info("S3 source storage initialized", "endpoint", endpoint, "bucket", r.bucket, "prefix", r.prefix)
	return r, nil
}

func (r *Reader) Key(name string) string {
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

// Open streams one object. The caller closes the reader.
func (r *Reader) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := r.Key(name)
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3://%s/%s: %w", r.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open s3://%s/%s: %w", r.bucket, key, err)
	}
	return out.Body, nil
}

// List returns the source names available under the prefix.
func (r *Reader) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if r.prefix != "" {
		prefix = r.prefix + "/"
	}
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", r.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
	}
	return out, nil
}

func (r *Reader) Close() error { return nil }
