// Package blob selects a blob storage backend from configuration.
package blob

import (
	"context"
	"fmt"

	"stockroom/internal/config"
	"stockroom/internal/infra/blob/core"
	"stockroom/internal/infra/blob/fs"
	"stockroom/internal/infra/blob/memory"
	"stockroom/internal/infra/blob/s3"
)

// Open returns the store named by cfg.Driver (fs, s3 or memory).
func Open(ctx context.Context, cfg config.Blob) (core.Store, error) {
	switch core.Driver(cfg.Driver) {
	case core.DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
