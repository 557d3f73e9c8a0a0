package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"stockroom/pkg/domain"
)

func fieldsOf(err error) []string {
	var invalid domain.InvalidArgumentError
	if !errors.As(err, &invalid) {
		return nil
	}
	out := make([]string, 0, len(invalid.Violations))
	for _, v := range invalid.Violations {
		out = append(out, v.Field)
	}
	return out
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewInMemoryService()
	rice := mustUpsert(t, svc, "Rice", 5)
	cases := []struct {
		name   string
		draft  OrderDraft
		fields []string
	}{
		{"blank title", OrderDraft{Title: " ", Price: decimal.NewFromInt(1), Ingredients: []IngredientInput{need(rice, 1)}}, []string{"title"}},
		{"zero price", OrderDraft{Title: "Bowl", Price: decimal.Zero, Ingredients: []IngredientInput{need(rice, 1)}}, []string{"price"}},
		{"negative price", OrderDraft{Title: "Bowl", Price: decimal.NewFromInt(-3), Ingredients: []IngredientInput{need(rice, 1)}}, []string{"price"}},
		{"no ingredients", OrderDraft{Title: "Bowl", Price: decimal.NewFromInt(1)}, []string{"ingredients"}},
		{"bad ingredient", OrderDraft{Title: "Bowl", Price: decimal.NewFromInt(1), Ingredients: []IngredientInput{need(rice, 1), {ItemID: "", Quantity: 0}}}, []string{"ingredients[1].item_id", "ingredients[1].quantity"}},
		{"unknown item", OrderDraft{Title: "Bowl", Price: decimal.NewFromInt(1), Ingredients: []IngredientInput{{ItemID: "ghost", Quantity: 1}}}, []string{"ingredients[0].item_id"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tc.draft)
			if domain.CodeOf(err) != domain.CodeInvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if got := fieldsOf(err); !reflect.DeepEqual(got, tc.fields) {
				t.Fatalf("expected fields %v, got %v", tc.fields, got)
			}
		})
	}
	orders, err := svc.ListOrders(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("rejected drafts must not create orders, got %d", len(orders))
	}
}

func TestCreateOrderAcceptsMinimalPrice(t *testing.T) {
	svc := NewInMemoryService()
	mint := mustUpsert(t, svc, "Mint", 1)
	order := mustCreateOrder(t, svc, "Leaf", "0.01", need(mint, 1))
	if !order.Price.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected price %s", order.Price)
	}
}

func TestCreateThenListRoundTrip(t *testing.T) {
	svc := NewInMemoryService()
	rice := mustUpsert(t, svc, "Rice", 5)
	beans := mustUpsert(t, svc, "Beans", 5)
	created := mustCreateOrder(t, svc, "  Burrito ", "8.75", need(rice, 2), need(beans, 1))
	if created.Title != "Burrito" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	want := []domain.Ingredient{
		{ItemID: rice.ID, Name: "Rice", Quantity: 2},
		{ItemID: beans.ID, Name: "Beans", Quantity: 1},
	}
	if !reflect.DeepEqual(created.Ingredients, want) {
		t.Fatalf("unexpected ingredients %+v", created.Ingredients)
	}
	processing, err := svc.ListOrders(context.Background(), domain.OrderProcessing)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(processing) != 1 || !reflect.DeepEqual(processing[0], created) {
		t.Fatalf("expected listed order to equal created one, got %+v", processing)
	}
}

func TestListOrdersNewestFirstAndFiltered(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	rice := mustUpsert(t, svc, "Rice", 50)
	a := mustCreateOrder(t, svc, "A", "1", need(rice, 1))
	b := mustCreateOrder(t, svc, "B", "1", need(rice, 1))
	c := mustCreateOrder(t, svc, "C", "1", need(rice, 1))
	if _, err := svc.CompleteOrder(ctx, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	all, err := svc.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != c.ID || all[2].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}
	done, _ := svc.ListOrders(ctx, domain.OrderCompleted)
	if len(done) != 1 || done[0].ID != b.ID {
		t.Fatalf("expected only B completed, got %+v", done)
	}
	if _, err := svc.ListOrders(ctx, "cancelled"); domain.CodeOf(err) != domain.CodeInvalidArgument {
		t.Fatalf("expected invalid status filter, got %v", err)
	}
}

func TestCancelOrderRules(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	rice := mustUpsert(t, svc, "Rice", 10)
	order := mustCreateOrder(t, svc, "Bowl", "5", need(rice, 1))

	if err := svc.CancelOrder(ctx, 404); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.CompleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err := svc.CancelOrder(ctx, order.ID)
	var state domain.InvalidStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if state.State != string(domain.OrderCompleted) || state.Operation != "cancel" {
		t.Fatalf("unexpected state error %+v", state)
	}
	if statusOf(t, svc, order.ID) != domain.OrderCompleted {
		t.Fatalf("completed order must survive cancel attempt")
	}
}

func TestOrderIDsAreMonotonic(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	rice := mustUpsert(t, svc, "Rice", 10)
	first := mustCreateOrder(t, svc, "One", "1", need(rice, 1))
	if err := svc.CancelOrder(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second := mustCreateOrder(t, svc, "Two", "1", need(rice, 1))
	if second.ID <= first.ID {
		t.Fatalf("expected ids to keep increasing, got %d after %d", second.ID, first.ID)
	}
	if _, err := svc.GetOrder(ctx, first.ID); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected cancelled order gone, got %v", err)
	}
}
