package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	blobcore "stockroom/internal/infra/blob/core"
	"stockroom/pkg/domain"
)

const (
	reportArchivePrefix = "reports/"
	archiveLinkTTL      = 15 * time.Minute
)

// ArchivedReport is a stored report together with its blob description.
type ArchivedReport struct {
	Archive blobcore.Info `json:"archive"`
	Report  Report        `json:"report"`
}

// ArchiveLink is a time-limited download URL for an archived report.
type ArchiveLink struct {
	Archive   blobcore.Info `json:"archive"`
	URL       string        `json:"url"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// archiveKey maps an archive name, as returned by ListReportArchives, to its
// blob key. Names are single path segments.
func archiveKey(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", domain.InvalidArgument("name", "must not be empty")
	case strings.Contains(name, "/"), strings.Contains(name, ".."):
		return "", domain.InvalidArgument("name", "must be a single archive name")
	case !strings.HasSuffix(name, ".json"):
		return "", domain.InvalidArgument("name", "must end in .json")
	}
	return reportArchivePrefix + name, nil
}

// ArchiveName returns the name under which an archive is addressed.
func ArchiveName(info blobcore.Info) string {
	return strings.TrimPrefix(info.Key, reportArchivePrefix)
}

func (s *Service) blobFailure(op, name string, err error) error {
	if errors.Is(err, blobcore.ErrNotFound) {
		return domain.NotFoundError{Entity: domain.EntityReportArchive, ID: name}
	}
	return domain.UnavailableError{Operation: op, Err: err}
}

// ListReportArchives lists archived reports, oldest first.
func (s *Service) ListReportArchives(ctx context.Context) ([]blobcore.Info, error) {
	const op = "list_report_archives"
	if s.blobs == nil {
		return nil, domain.UnavailableError{Operation: op, Err: blobcore.ErrUnsupported}
	}
	var infos []blobcore.Info
	err := s.observe(ctx, op, func(ctx context.Context) error {
		var err error
		infos, err = s.blobs.List(ctx, reportArchivePrefix)
		if err != nil {
			return s.blobFailure(op, "", err)
		}
		return nil
	})
	return infos, err
}

// GetReportArchive loads one archived report.
func (s *Service) GetReportArchive(ctx context.Context, name string) (ArchivedReport, error) {
	const op = "get_report_archive"
	key, err := archiveKey(name)
	if err != nil {
		return ArchivedReport{}, err
	}
	if s.blobs == nil {
		return ArchivedReport{}, domain.UnavailableError{Operation: op, Err: blobcore.ErrUnsupported}
	}
	var out ArchivedReport
	err = s.observe(ctx, op, func(ctx context.Context) error {
		info, err := blobcore.GetJSON(ctx, s.blobs, key, &out.Report)
		if err != nil {
			return s.blobFailure(op, name, err)
		}
		out.Archive = info
		return nil
	})
	if err != nil {
		return ArchivedReport{}, err
	}
	return out, nil
}

// ReportArchiveLink returns a pre-signed download URL for an existing archive.
// Backends without signing support report Unavailable.
func (s *Service) ReportArchiveLink(ctx context.Context, name string) (ArchiveLink, error) {
	const op = "report_archive_link"
	key, err := archiveKey(name)
	if err != nil {
		return ArchiveLink{}, err
	}
	if s.blobs == nil {
		return ArchiveLink{}, domain.UnavailableError{Operation: op, Err: blobcore.ErrUnsupported}
	}
	var link ArchiveLink
	err = s.observe(ctx, op, func(ctx context.Context) error {
		// S3 signs any key, so existence is checked first.
		info, err := s.blobs.Head(ctx, key)
		if err != nil {
			return s.blobFailure(op, name, err)
		}
		url, err := s.blobs.PresignURL(ctx, key, blobcore.SignedURLOptions{Method: "GET", Expiry: archiveLinkTTL})
		if err != nil {
			return s.blobFailure(op, name, err)
		}
		link = ArchiveLink{Archive: info, URL: url, ExpiresAt: s.now().Add(archiveLinkTTL)}
		return nil
	})
	if err != nil {
		return ArchiveLink{}, err
	}
	return link, nil
}

// DeleteReportArchive removes one archived report.
func (s *Service) DeleteReportArchive(ctx context.Context, name string) error {
	const op = "delete_report_archive"
	key, err := archiveKey(name)
	if err != nil {
		return err
	}
	if s.blobs == nil {
		return domain.UnavailableError{Operation: op, Err: blobcore.ErrUnsupported}
	}
	err = s.observe(ctx, op, func(ctx context.Context) error {
		existed, err := s.blobs.Delete(ctx, key)
		if err != nil {
			return s.blobFailure(op, name, err)
		}
		if !existed {
			return domain.NotFoundError{Entity: domain.EntityReportArchive, ID: name}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("report archive deleted", zap.String("key", key))
	return nil
}
