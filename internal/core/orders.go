package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockroom/internal/notify"
	"stockroom/pkg/domain"
)

// IngredientInput references an inventory item consumed by a new order.
type IngredientInput struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// OrderDraft carries the caller-supplied fields of a new order.
type OrderDraft struct {
	Title       string            `json:"title"`
	Price       decimal.Decimal   `json:"price"`
	Ingredients []IngredientInput `json:"ingredients"`
}

func (d OrderDraft) validate() []domain.FieldViolation {
	var violations []domain.FieldViolation
	if strings.TrimSpace(d.Title) == "" {
		violations = append(violations, domain.FieldViolation{Field: "title", Reason: "must not be empty"})
	}
	if !d.Price.IsPositive() {
		violations = append(violations, domain.FieldViolation{Field: "price", Reason: fmt.Sprintf("must be positive, got %s", d.Price.String())})
	}
	if len(d.Ingredients) == 0 {
		violations = append(violations, domain.FieldViolation{Field: "ingredients", Reason: "must not be empty"})
	}
	for i, in := range d.Ingredients {
		if strings.TrimSpace(in.ItemID) == "" {
			violations = append(violations, domain.FieldViolation{Field: fmt.Sprintf("ingredients[%d].item_id", i), Reason: "must not be empty"})
		}
		if in.Quantity <= 0 {
			violations = append(violations, domain.FieldViolation{Field: fmt.Sprintf("ingredients[%d].quantity", i), Reason: fmt.Sprintf("must be positive, got %d", in.Quantity)})
		}
	}
	return violations
}

// CreateOrder validates draft and stores it as a processing order. Ingredient
// references must resolve to existing items; their names are captured for
// display. Stock is not checked or reserved until completion.
func (s *Service) CreateOrder(ctx context.Context, draft OrderDraft) (domain.Order, error) {
	var created domain.Order
	err := s.observe(ctx, "create_order", func(ctx context.Context) error {
		if violations := draft.validate(); len(violations) > 0 {
			return domain.InvalidArgumentError{Violations: violations}
		}
		_, err := s.runWithRetry(ctx, "create_order", func(tx domain.Transaction) error {
			// Resolved through the snapshot so that concurrent stock changes
			// do not invalidate order creation.
			view := tx.Snapshot()
			ingredients := make([]domain.Ingredient, 0, len(draft.Ingredients))
			var unresolved []domain.FieldViolation
			for i, in := range draft.Ingredients {
				item, ok := view.FindItem(strings.TrimSpace(in.ItemID))
				if !ok {
					unresolved = append(unresolved, domain.FieldViolation{
						Field:  fmt.Sprintf("ingredients[%d].item_id", i),
						Reason: fmt.Sprintf("inventory item %q does not exist", in.ItemID),
					})
					continue
				}
				ingredients = append(ingredients, domain.Ingredient{ItemID: item.ID, Name: item.Name, Quantity: in.Quantity})
			}
			if len(unresolved) > 0 {
				return domain.InvalidArgumentError{Violations: unresolved}
			}
			var err error
			created, err = tx.CreateOrder(domain.Order{
				Title:       strings.TrimSpace(draft.Title),
				Price:       draft.Price,
				Ingredients: ingredients,
				Status:      domain.OrderProcessing,
			})
			return err
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("title", created.Title),
		zap.String("price", created.Price.StringFixed(2)),
		zap.Int("ingredients", len(created.Ingredients)),
	)
	s.notify(ctx, notify.Event{Kind: notify.KindOrderCreated, OrderID: created.ID, Text: orderCreatedText(created)})
	return created, nil
}

// CancelOrder deletes a processing order. Completed orders are immutable and
// yield InvalidStateError.
func (s *Service) CancelOrder(ctx context.Context, id int64) error {
	err := s.observe(ctx, "cancel_order", func(ctx context.Context) error {
		_, err := s.runWithRetry(ctx, "cancel_order", func(tx domain.Transaction) error {
			order, ok := tx.FindOrder(id)
			if !ok {
				return domain.OrderNotFound(id)
			}
			if order.Completed() {
				return domain.InvalidStateError{
					Entity:    domain.EntityOrder,
					ID:        fmt.Sprint(id),
					State:     string(order.Status),
					Operation: "cancel",
				}
			}
			return tx.DeleteOrder(id)
		})
		return err
	})
	if err == nil {
		s.logger.Info("order cancelled", zap.Int64("order_id", id))
	}
	return err
}

// GetOrder returns one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	err := s.observe(ctx, "get_order", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindOrder(id)
			if !ok {
				return domain.OrderNotFound(id)
			}
			order = found
			return nil
		})
	})
	return order, err
}

// ListOrders returns orders newest first. An empty status returns every order.
func (s *Service) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, domain.InvalidArgument("status", fmt.Sprintf("unknown order status %q", status))
	}
	var orders []domain.Order
	err := s.observe(ctx, "list_orders", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			all := view.ListOrders()
			if status == "" {
				orders = all
				return nil
			}
			orders = make([]domain.Order, 0, len(all))
			for _, order := range all {
				if order.Status == status {
					orders = append(orders, order)
				}
			}
			return nil
		})
	})
	return orders, err
}
