package blob

import (
	"context"
	"testing"

	"stockroom/internal/config"
	"stockroom/internal/infra/blob/core"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, config.Blob{Driver: "memory"})
	if err != nil || mem.Driver() != core.DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	fsStore, err := Open(ctx, config.Blob{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != core.DriverFilesystem {
		t.Fatalf("fs: %v", err)
	}
	if _, err := Open(ctx, config.Blob{Driver: "s3"}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, config.Blob{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
