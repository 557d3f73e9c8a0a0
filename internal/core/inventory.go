package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"stockroom/pkg/domain"
)

// UpsertItemByName adds delta units to the item whose normalized name matches
// name, creating the item when none exists. An empty source means manual entry.
func (s *Service) UpsertItemByName(ctx context.Context, name string, delta int, source domain.Provenance) (domain.InventoryItem, error) {
	return s.upsertItem(ctx, "upsert_item", name, delta, source, "")
}

func (s *Service) upsertItem(ctx context.Context, op, name string, delta int, source domain.Provenance, analysisKey string) (domain.InventoryItem, error) {
	if source == "" {
		source = domain.ProvenanceManual
	}
	var item domain.InventoryItem
	var created bool
	err := s.observe(ctx, op, func(ctx context.Context) error {
		if err := validateUpsert(name, delta, source); err != nil {
			return err
		}
		_, err := s.runWithRetry(ctx, op, func(tx domain.Transaction) error {
			created = false
			existing, ok := tx.FindItemByName(name)
			if !ok {
				var err error
				item, err = tx.CreateItem(domain.InventoryItem{
					Name:            name,
					Quantity:        delta,
					Source:          source,
					LastAnalysisKey: analysisKey,
				})
				created = err == nil
				return err
			}
			var err error
			item, err = tx.UpdateItem(existing.ID, func(current *domain.InventoryItem) error {
				if current.Quantity > math.MaxInt-delta {
					return domain.InvalidArgument("quantity", fmt.Sprintf("adding %d to %d units of %s exceeds the maximum stock", delta, current.Quantity, current.Name))
				}
				current.Quantity += delta
				if analysisKey != "" {
					current.LastAnalysisKey = analysisKey
				}
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logger.Info("inventory updated",
		zap.String("item_id", item.ID),
		zap.String("name", item.Name),
		zap.Int("delta", delta),
		zap.Int("quantity", item.Quantity),
		zap.Bool("created", created),
		zap.String("source", string(item.Source)),
	)
	return item, nil
}

func validateUpsert(name string, delta int, source domain.Provenance) error {
	var violations []domain.FieldViolation
	if strings.TrimSpace(name) == "" {
		violations = append(violations, domain.FieldViolation{Field: "name", Reason: "must not be empty"})
	}
	if delta <= 0 {
		violations = append(violations, domain.FieldViolation{Field: "quantity", Reason: fmt.Sprintf("must be positive, got %d", delta)})
	}
	if !source.Valid() {
		violations = append(violations, domain.FieldViolation{Field: "source", Reason: fmt.Sprintf("unknown provenance %q", source)})
	}
	if len(violations) > 0 {
		return domain.InvalidArgumentError{Violations: violations}
	}
	return nil
}

// GetItem returns one inventory item.
func (s *Service) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.observe(ctx, "get_item", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindItem(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityItem, ID: id}
			}
			item = found
			return nil
		})
	})
	return item, err
}

// ListItems returns every inventory item ordered by name.
func (s *Service) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	err := s.observe(ctx, "list_items", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			items = view.ListItems()
			return nil
		})
	})
	return items, err
}

// DeleteItem removes an inventory item. Orders that still reference it fail
// with NotFound when completed.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.observe(ctx, "delete_item", func(ctx context.Context) error {
		_, err := s.runWithRetry(ctx, "delete_item", func(tx domain.Transaction) error {
			return tx.DeleteItem(id)
		})
		return err
	})
}
