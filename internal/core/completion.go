package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockroom/internal/notify"
	"stockroom/pkg/domain"
)

// LowStockWarning flags an item left below the threshold by a completion.
type LowStockWarning struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Completion is the successful outcome of CompleteOrder. Failures are
// reported through the typed errors in pkg/domain.
type Completion struct {
	OrderID          int64             `json:"order_id"`
	Success          bool              `json:"success"`
	AlreadyCompleted bool              `json:"already_completed"`
	Message          string            `json:"message"`
	LowStock         []LowStockWarning `json:"low_stock"`
	Order            domain.Order      `json:"order"`
}

type requirement struct {
	itemID   string
	name     string
	quantity int
}

// aggregateRequirements sums the quantities per item, keeping first-seen order.
func aggregateRequirements(ingredients []domain.Ingredient) []requirement {
	index := make(map[string]int, len(ingredients))
	out := make([]requirement, 0, len(ingredients))
	for _, in := range ingredients {
		if i, ok := index[in.ItemID]; ok {
			out[i].quantity += in.Quantity
			continue
		}
		index[in.ItemID] = len(out)
		out = append(out, requirement{itemID: in.ItemID, name: in.Name, quantity: in.Quantity})
	}
	return out
}

// completeOrderTx is the read-check-write body of order completion. Every
// read goes into the transaction's read set, so the commit fails with
// domain.ErrConflict if the order or any ingredient item changed meanwhile.
// It performs no writes unless every ingredient is sufficient.
func completeOrderTx(tx domain.Transaction, orderID int64, now time.Time, threshold int) (Completion, error) {
	order, ok := tx.FindOrder(orderID)
	if !ok {
		return Completion{}, domain.OrderNotFound(orderID)
	}
	if order.Completed() {
		return Completion{
			OrderID:          orderID,
			Success:          true,
			AlreadyCompleted: true,
			Message:          fmt.Sprintf("order %d was already completed", orderID),
			Order:            order,
		}, nil
	}

	reqs := aggregateRequirements(order.Ingredients)
	available := make([]int, len(reqs))
	var shortfalls []domain.Shortfall
	for i, req := range reqs {
		item, ok := tx.FindItem(req.itemID)
		if !ok {
			return Completion{}, domain.NotFoundError{Entity: domain.EntityItem, ID: req.itemID}
		}
		available[i] = item.Quantity
		if item.Quantity < req.quantity {
			shortfalls = append(shortfalls, domain.Shortfall{
				ItemID:    item.ID,
				Name:      item.Name,
				Required:  req.quantity,
				Available: item.Quantity,
			})
		}
		reqs[i].name = item.Name
	}
	if len(shortfalls) > 0 {
		return Completion{}, domain.InsufficientStockError{OrderID: orderID, Shortfalls: shortfalls}
	}

	var low []LowStockWarning
	for i, req := range reqs {
		remaining := available[i] - req.quantity
		if _, err := tx.SetItemQuantity(req.itemID, remaining); err != nil {
			return Completion{}, err
		}
		if remaining < threshold {
			low = append(low, LowStockWarning{ItemID: req.itemID, Name: req.name, Quantity: remaining})
		}
	}
	completedAt := now
	updated, err := tx.UpdateOrder(orderID, func(o *domain.Order) error {
		o.Status = domain.OrderCompleted
		o.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		OrderID:  orderID,
		Success:  true,
		Message:  fmt.Sprintf("order %d completed", orderID),
		LowStock: low,
		Order:    updated,
	}, nil
}

// CompleteOrder deducts every ingredient and marks the order completed in one
// atomic step. Repeating the call on a completed order succeeds without
// touching stock. Low-stock warnings are advisory and never block completion.
func (s *Service) CompleteOrder(ctx context.Context, id int64) (Completion, error) {
	var result Completion
	err := s.observe(ctx, "complete_order", func(ctx context.Context) error {
		_, err := s.runWithRetry(ctx, "complete_order", func(tx domain.Transaction) error {
			var err error
			result, err = completeOrderTx(tx, id, s.now(), s.lowStockThreshold)
			return err
		})
		return err
	})
	if err != nil {
		return Completion{}, err
	}
	if result.AlreadyCompleted {
		s.logger.Debug("order already completed", zap.Int64("order_id", id))
		return result, nil
	}
	s.logger.Info("order completed",
		zap.Int64("order_id", id),
		zap.Int("low_stock", len(result.LowStock)),
	)
	s.notify(ctx, notify.Event{Kind: notify.KindOrderCompleted, OrderID: id, Text: orderCompletedText(result.Order)})
	if len(result.LowStock) > 0 {
		s.notify(ctx, notify.Event{Kind: notify.KindLowStock, OrderID: id, Text: lowStockText(result.LowStock)})
	}
	return result, nil
}
