package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"stockroom/internal/infra/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "reports/2024.json", bytes.NewReader([]byte(`{"total":"10"}`)), core.PutOptions{ContentType: core.ContentTypeJSON, Metadata: map[string]string{"kind": "report"}})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != 14 || len(info.ETag) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "reports/2024.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	got, body, err := store.Get(ctx, "reports/2024.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != `{"total":"10"}` || got.Metadata["kind"] != "report" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}
	head, err := store.Head(ctx, "reports/2024.json")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("Head: %+v %v", head, err)
	}
	if _, err := store.Put(ctx, "analyses/x.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("Put analysis: %v", err)
	}
	list, err := store.List(ctx, "reports/")
	if err != nil || len(list) != 1 || list[0].Key != "reports/2024.json" {
		t.Fatalf("List: %+v %v", list, err)
	}
	ok, err := store.Delete(ctx, "reports/2024.json")
	if err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "reports", "2024.json.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	if ok, _ := store.Delete(ctx, "reports/2024.json"); ok {
		t.Fatalf("expected second delete to report missing")
	}
	if _, err := store.Head(ctx, "reports/2024.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q rejected", key)
		}
	}
}

func TestStorePresign(t *testing.T) {
	store := newTempStore(t)
	url, err := store.PresignURL(context.Background(), "reports/a.json", core.SignedURLOptions{})
	if err != nil || url != "http://local.blob/reports/a.json" {
		t.Fatalf("unexpected url %q %v", url, err)
	}
	if _, err := store.PresignURL(context.Background(), "reports/a.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
