package core

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"stockroom/pkg/domain"
)

func mustUpsert(t *testing.T, svc *Service, name string, qty int) domain.InventoryItem {
	t.Helper()
	item, err := svc.UpsertItemByName(context.Background(), name, qty, "")
	if err != nil {
		t.Fatalf("upsert %s: %v", name, err)
	}
	return item
}

func mustCreateOrder(t *testing.T, svc *Service, title, price string, ingredients ...IngredientInput) domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), OrderDraft{
		Title:       title,
		Price:       decimal.RequireFromString(price),
		Ingredients: ingredients,
	})
	if err != nil {
		t.Fatalf("create order %s: %v", title, err)
	}
	return order
}

func need(item domain.InventoryItem, qty int) IngredientInput {
	return IngredientInput{ItemID: item.ID, Quantity: qty}
}

func quantityOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	item, err := svc.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item.Quantity
}

func statusOf(t *testing.T, svc *Service, id int64) domain.OrderStatus {
	t.Helper()
	order, err := svc.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %d: %v", id, err)
	}
	return order.Status
}
