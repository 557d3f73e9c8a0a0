package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	blobcore "stockroom/internal/infra/blob/core"
	"stockroom/pkg/domain"
)

const topStockedLimit = 5

// Report aggregates sales and the current inventory from one consistent snapshot.
type Report struct {
	GeneratedAt      time.Time                 `json:"generated_at"`
	TotalSales       decimal.Decimal           `json:"total_sales"`
	Inventory        []domain.InventoryItem    `json:"inventory"`
	ItemCount        int                       `json:"item_count"`
	ProcessingOrders int                       `json:"processing_orders"`
	CompletedOrders  int                       `json:"completed_orders"`
	BySource         map[domain.Provenance]int `json:"by_source"`
	TopStocked       []domain.InventoryItem    `json:"top_stocked"`
}

// Report sums the price of completed orders and captures the inventory.
func (s *Service) Report(ctx context.Context) (Report, error) {
	var report Report
	err := s.observe(ctx, "report", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			report = buildReport(view.ListItems(), view.ListOrders(), s.now())
			return nil
		})
	})
	return report, err
}

func buildReport(items []domain.InventoryItem, orders []domain.Order, now time.Time) Report {
	report := Report{
		GeneratedAt: now,
		TotalSales:  decimal.Zero,
		Inventory:   items,
		ItemCount:   len(items),
		BySource:    make(map[domain.Provenance]int),
	}
	for _, order := range orders {
		switch order.Status {
		case domain.OrderCompleted:
			report.CompletedOrders++
			report.TotalSales = report.TotalSales.Add(order.Price)
		case domain.OrderProcessing:
			report.ProcessingOrders++
		}
	}
	for _, item := range items {
		report.BySource[item.Source]++
	}
	top := append([]domain.InventoryItem(nil), items...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Quantity > top[j].Quantity })
	if len(top) > topStockedLimit {
		top = top[:topStockedLimit]
	}
	report.TopStocked = top
	return report
}

// ArchiveReport stores the current report as JSON in blob storage and
// returns the stored object's description.
func (s *Service) ArchiveReport(ctx context.Context) (blobcore.Info, error) {
	if s.blobs == nil {
		return blobcore.Info{}, domain.UnavailableError{Operation: "archive_report", Err: blobcore.ErrUnsupported}
	}
	report, err := s.Report(ctx)
	if err != nil {
		return blobcore.Info{}, err
	}
	key := fmt.Sprintf("%s%s.json", reportArchivePrefix, report.GeneratedAt.UTC().Format("20060102T150405.000000000Z"))
	var info blobcore.Info
	err = s.observe(ctx, "archive_report", func(ctx context.Context) error {
		var err error
		info, err = blobcore.PutJSON(ctx, s.blobs, key, report, map[string]string{
			"total_sales": report.TotalSales.StringFixed(2),
		})
		if err != nil {
			return domain.UnavailableError{Operation: "archive_report", Err: err}
		}
		return nil
	})
	if err != nil {
		return blobcore.Info{}, err
	}
	s.logger.Info("report archived", zap.String("key", info.Key), zap.Int64("size", info.Size))
	return info, nil
}
