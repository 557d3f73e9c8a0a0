package core

import (
	"context"
	"fmt"
	"strconv"

	"stockroom/pkg/domain"
)

// NewDefaultRulesEngine returns an engine with the built-in inventory rules registered.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewNonNegativeStockRule())
	engine.Register(NewCompletedOrderImmutableRule())
	return engine
}

// NewNonNegativeStockRule blocks any commit that leaves an item below zero.
func NewNonNegativeStockRule() domain.Rule {
	return nonNegativeStockRule{}
}

type nonNegativeStockRule struct{}

func (nonNegativeStockRule) Name() string { return "non_negative_stock" }

func (r nonNegativeStockRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityItem || change.After == nil {
			continue
		}
		after, ok := change.After.(domain.InventoryItem)
		if !ok {
			continue
		}
		item, ok := view.FindItem(after.ID)
		if !ok || item.Quantity >= 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("item %s (%s) would hold %d units", item.Name, item.ID, item.Quantity),
			Entity:   domain.EntityItem,
			EntityID: item.ID,
		})
	}
	return res, nil
}

// NewCompletedOrderImmutableRule blocks updates and deletes of completed orders.
func NewCompletedOrderImmutableRule() domain.Rule {
	return completedOrderImmutableRule{}
}

type completedOrderImmutableRule struct{}

func (completedOrderImmutableRule) Name() string { return "completed_order_immutable" }

func (r completedOrderImmutableRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOrder || change.Action == domain.ActionCreate {
			continue
		}
		before, ok := change.Before.(domain.Order)
		if !ok || !before.Completed() {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("order %d is completed and cannot be %sd", before.ID, change.Action),
			Entity:   domain.EntityOrder,
			EntityID: strconv.FormatInt(before.ID, 10),
		})
	}
	return res, nil
}
