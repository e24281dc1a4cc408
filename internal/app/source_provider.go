package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/studygraph-ingest/internal/platform/gcp"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/platform/s3store"
	"github.com/yungbote/studygraph-ingest/internal/source"
)

var (
	newBucketReader = func(ctx context.Context, log *logger.Logger, cfg gcp.ObjectStorageConfig) (sourceOpenCloser, error) {
		return gcp.NewBucketReader(ctx, log, cfg)
	}
	newS3Reader = func(ctx context.Context, log *logger.Logger, cfg s3store.Config) (sourceOpenCloser, error) {
		return s3store.New(ctx, log, cfg)
	}
)

type sourceOpenCloser interface {
	source.Opener
	Close() error
}

type SourceProviderBootstrapErrorCode string

const (
	SourceProviderBootstrapErrorInvalidMode         SourceProviderBootstrapErrorCode = "invalid_mode"
	SourceProviderBootstrapErrorMissingBucket       SourceProviderBootstrapErrorCode = "missing_bucket"
	SourceProviderBootstrapErrorMissingEmulatorHost SourceProviderBootstrapErrorCode = "missing_emulator_host"
	SourceProviderBootstrapErrorInvalidEmulatorHost SourceProviderBootstrapErrorCode = "invalid_emulator_host"
	SourceProviderBootstrapErrorConnectFailed       SourceProviderBootstrapErrorCode = "connect_failed"
)

type SourceProviderBootstrapError struct {
	Code  SourceProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *SourceProviderBootstrapError) Error() string {
	if e == nil {
		return "source storage bootstrap failed"
	}
	return fmt.Sprintf("source storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *SourceProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveSourceOpener builds the opener named by SOURCE_STORAGE. The returned
// closer releases any client the opener holds.
func resolveSourceOpener(ctx context.Context, log *logger.Logger, cfg SourceConfig) (source.Opener, func() error, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Storage))
	log.Info("Selecting source storage", "mode", mode, "directory", cfg.Directory, "bucket", cfg.Bucket)
	switch mode {
	case SourceStorageLocal, "":
		return source.NewDirOpener(cfg.Directory), func() error { return nil }, nil
	case SourceStorageGCS, SourceStorageGCSEmulator:
		resolved, fallback, err := gcp.ResolveObjectStorageMode(mode, cfg.EmulatorHost)
		if err != nil {
			return nil, nil, classifySourceProviderBootstrapError(mode, err)
		}
		r, err := newBucketReader(ctx, log, gcp.ObjectStorageConfig{
			Mode:                  resolved,
			EmulatorHost:          strings.TrimSpace(cfg.EmulatorHost),
			Bucket:                cfg.Bucket,
			Prefix:                cfg.Directory,
			CredentialsJSON:       cfg.CredentialsJSON,
			CredentialsFile:       cfg.CredentialsFile,
			CompatibilityFallback: fallback,
		})
		if err != nil {
			classified := classifySourceProviderBootstrapError(mode, err)
			log.Error("Source storage bootstrap failed", "mode", mode, "error_code", sourceProviderBootstrapErrorCode(classified), "error", classified)
			return nil, nil, classified
		}
		return r, r.Close, nil
	case SourceStorageS3:
		r, err := newS3Reader(ctx, log, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Directory,
		})
		if err != nil {
			classified := classifySourceProviderBootstrapError(mode, err)
			log.Error("Source storage bootstrap failed", "mode", mode, "error_code", sourceProviderBootstrapErrorCode(classified), "error", classified)
			return nil, nil, classified
		}
		return r, r.Close, nil
	default:
		return nil, nil, &SourceProviderBootstrapError{
			Code:  SourceProviderBootstrapErrorInvalidMode,
			Mode:  mode,
			Cause: fmt.Errorf("unsupported source storage %q", mode),
		}
	}
}

func classifySourceProviderBootstrapError(mode string, err error) error {
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		code := SourceProviderBootstrapErrorConnectFailed
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = SourceProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = SourceProviderBootstrapErrorMissingBucket
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = SourceProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = SourceProviderBootstrapErrorInvalidEmulatorHost
		}
		return &SourceProviderBootstrapError{Code: code, Mode: mode, Cause: err}
	}
	return &SourceProviderBootstrapError{Code: SourceProviderBootstrapErrorConnectFailed, Mode: mode, Cause: err}
}

func sourceProviderBootstrapErrorCode(err error) SourceProviderBootstrapErrorCode {
	var bootstrapErr *SourceProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return SourceProviderBootstrapErrorConnectFailed
}

// NewSourceLoader builds a loader over the configured source storage without
// wiring a graph store.
func NewSourceLoader(ctx context.Context, log *logger.Logger, cfg SourceConfig) (*source.Loader, func() error, error) {
	opener, closer, err := resolveSourceOpener(ctx, log, cfg)
	if err != nil {
		return nil, nil, err
	}
	loader, err := source.NewLoader(opener, log)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return loader, closer, nil
}
