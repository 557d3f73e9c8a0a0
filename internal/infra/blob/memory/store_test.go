package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"stockroom/internal/infra/blob/core"
)

func TestStoreMissingKeys(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}
}

func TestStorePutGetListDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	meta := map[string]string{"item": "rice"}
	if _, err := store.Put(ctx, "analyses/a.json", bytes.NewReader([]byte("{}")), core.PutOptions{ContentType: core.ContentTypeJSON, Metadata: meta}); err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["item"] = "mutated"
	if _, err := store.Put(ctx, "analyses/a.json", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	if _, err := store.Put(ctx, "reports/r.json", bytes.NewReader([]byte("[]")), core.PutOptions{}); err != nil {
		t.Fatalf("put report: %v", err)
	}
	info, body, err := store.Get(ctx, "analyses/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "{}" || info.Metadata["item"] != "rice" || info.Size != 2 {
		t.Fatalf("unexpected blob %q %+v", data, info)
	}
	list, err := store.List(ctx, "analyses/")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one analysis, got %v %v", list, err)
	}
	if all, _ := store.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected two blobs, got %d", len(all))
	}
	if ok, err := store.Delete(ctx, "analyses/a.json"); err != nil || !ok {
		t.Fatalf("expected delete true")
	}
	if _, err := store.PresignURL(ctx, "reports/r.json", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}

func TestJSONHelpers(t *testing.T) {
	store := New()
	ctx := context.Background()
	in := map[string]int{"rice": 3}
	if _, err := core.PutJSON(ctx, store, "doc.json", in, nil); err != nil {
		t.Fatalf("put json: %v", err)
	}
	var out map[string]int
	info, err := core.GetJSON(ctx, store, "doc.json", &out)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out["rice"] != 3 || info.ContentType != core.ContentTypeJSON {
		t.Fatalf("unexpected round trip %v %+v", out, info)
	}
}
