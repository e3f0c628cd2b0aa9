package services

import (
	"context"
	"errors"
	"testing"
)

func newTestCartService(t *testing.T) CartService {
	t.Helper()
	products := newStubProductRepo(
		productFixture("p1", "Linen Shirt", "49.99", "S", "M"),
		productFixture("p2", "Tote Bag", "15"),
	)
	svc, err := NewCartService(CartServiceDeps{Store: NewMemoryCartStore(), Products: products, Tracker: NewQuoteTracker()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestCartService_AddMergesSameLine(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "M", Quantity: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cart, err := svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "M", Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line of 3, got %+v", cart.Items)
	}

	cart, err = svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "S", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected separate line per size, got %+v", cart.Items)
	}
}

func TestCartService_Validation(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "XL", Quantity: 1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid size, got %v", err)
	}
	if _, err := svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "missing", Quantity: 1}); !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := svc.AddItem(ctx, CartItemCommand{SessionID: "", ProductID: "p2", Quantity: 1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected missing session error, got %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, CartItemCommand{SessionID: "s1", ProductID: "p2", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCartService_UpdateRemoveAndClear(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "M", Quantity: 1})
	_, _ = svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p2", Quantity: 1})

	cart, err := svc.UpdateQuantity(ctx, CartItemCommand{SessionID: "s1", ProductID: "p1", Size: "M", Quantity: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "p2" {
		t.Fatalf("expected zero quantity to remove line, got %+v", cart.Items)
	}

	cart, err = svc.RemoveItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}

	_, _ = svc.ToggleWishlist(ctx, "s1", "p1")
	_, _ = svc.AddItem(ctx, CartItemCommand{SessionID: "s1", ProductID: "p2", Quantity: 4})
	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cart, _ = svc.GetCart(ctx, "s1")
	if len(cart.Items) != 0 || len(cart.Wishlist) != 1 {
		t.Fatalf("expected items cleared and wishlist kept, got %+v", cart)
	}
}

func TestCartService_ToggleWishlist(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	cart, err := svc.ToggleWishlist(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Wishlist) != 1 {
		t.Fatalf("expected wishlist entry, got %+v", cart.Wishlist)
	}
	cart, err = svc.ToggleWishlist(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Wishlist) != 0 {
		t.Fatalf("expected wishlist toggled off, got %+v", cart.Wishlist)
	}
	if _, err := svc.ToggleWishlist(ctx, "s1", "nope"); !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
