package archive

import (
	"context"
	"fmt"
)

// Backend names an archive storage backend.
type Backend string

const (
	BackendNone Backend = ""
	BackendFS   Backend = "fs"
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
)

// Config selects and configures a backend. Location is a directory for fs
// and a bucket name for s3 and gcs.
type Config struct {
	Backend  Backend
	Location string
	Region   string
	Endpoint string
	Prefix   string
}

// NewStore opens the configured backend. BackendNone returns a nil Store,
// which disables archiving.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendFS:
		if cfg.Location == "" {
			return nil, fmt.Errorf("archive directory is required for fs storage")
		}
		return NewFileStore(cfg.Location)
	case BackendS3:
		if cfg.Location == "" {
			return nil, fmt.Errorf("archive bucket is required for s3 storage")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		st, err := NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Location,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return Guard(st, "archive-s3"), nil
	case BackendGCS:
		if cfg.Location == "" {
			return nil, fmt.Errorf("archive bucket is required for gcs storage")
		}
		st, err := newGCSStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return Guard(st, "archive-gcs"), nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}
