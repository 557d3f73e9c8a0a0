package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	blobcore "stockroom/internal/infra/blob/core"
	blobfs "stockroom/internal/infra/blob/fs"
	blobmemory "stockroom/internal/infra/blob/memory"
	"stockroom/pkg/domain"
)

func archiveOne(t *testing.T, svc *Service) string {
	t.Helper()
	info, err := svc.ArchiveReport(context.Background())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	return ArchiveName(info)
}

func TestReportArchiveLifecycle(t *testing.T) {
	blobs, err := blobfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs blob: %v", err)
	}
	svc := NewInMemoryService(WithBlobStore(blobs))
	ctx := context.Background()
	rice := mustUpsert(t, svc, "Rice", 20)
	order := mustCreateOrder(t, svc, "Bowl", "4.25", need(rice, 2))
	if _, err := svc.CompleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	name := archiveOne(t, svc)
	if !strings.HasSuffix(name, ".json") || strings.Contains(name, "/") {
		t.Fatalf("unexpected archive name %q", name)
	}

	infos, err := svc.ListReportArchives(ctx)
	if err != nil || len(infos) != 1 || ArchiveName(infos[0]) != name {
		t.Fatalf("expected one listed archive, got %+v (%v)", infos, err)
	}
	archived, err := svc.GetReportArchive(ctx, name)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	if archived.Report.TotalSales.StringFixed(2) != "4.25" || archived.Archive.Key != infos[0].Key {
		t.Fatalf("unexpected archived report %+v", archived)
	}
	link, err := svc.ReportArchiveLink(ctx, name)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !strings.HasSuffix(link.URL, "/reports/"+name) || !link.ExpiresAt.After(svc.now()) {
		t.Fatalf("unexpected link %+v", link)
	}

	if err := svc.DeleteReportArchive(ctx, name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteReportArchive(ctx, name); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := svc.GetReportArchive(ctx, name); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := svc.ReportArchiveLink(ctx, name); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not found link after delete, got %v", err)
	}
}

func TestReportArchiveNamesAreValidated(t *testing.T) {
	svc := NewInMemoryService(WithBlobStore(blobmemory.New()))
	for _, name := range []string{"", "../meta.json", "a/b.json", "report.txt"} {
		if _, err := svc.GetReportArchive(context.Background(), name); domain.CodeOf(err) != domain.CodeInvalidArgument {
			t.Fatalf("name %q: expected invalid argument, got %v", name, err)
		}
	}
}

func TestReportArchiveLinkUnsupportedByMemoryBlobs(t *testing.T) {
	svc := NewInMemoryService(WithBlobStore(blobmemory.New()))
	name := archiveOne(t, svc)
	_, err := svc.ReportArchiveLink(context.Background(), name)
	if domain.CodeOf(err) != domain.CodeUnavailable || !errors.Is(err, blobcore.ErrUnsupported) {
		t.Fatalf("expected unsupported signing, got %v", err)
	}
}

func TestReportArchivesWithoutBlobStore(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	if _, err := svc.ListReportArchives(ctx); domain.CodeOf(err) != domain.CodeUnavailable {
		t.Fatalf("expected unavailable list, got %v", err)
	}
	if err := svc.DeleteReportArchive(ctx, "x.json"); domain.CodeOf(err) != domain.CodeUnavailable {
		t.Fatalf("expected unavailable delete, got %v", err)
	}
}
