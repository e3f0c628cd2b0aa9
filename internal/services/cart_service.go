package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/repositories"
)

const maxCartLineQuantity = 99

var (
	// ErrCartInvalidInput signals malformed cart commands.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartProductNotFound is returned when the referenced product does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartItemNotFound is returned when the targeted cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
)

// CartServiceDeps bundles collaborators required by the cart service.
type CartServiceDeps struct {
	Store    CartStore
	Products repositories.ProductRepository
	Tracker  *QuoteTracker
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	store    CartStore
	products repositories.ProductRepository
	tracker  *QuoteTracker
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errors.New("cart service: cart store is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		store:    deps.Store,
		products: deps.Products,
		tracker:  deps.Tracker,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, ok, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart: load %s: %w", sessionID, err)
	}
	if !ok {
		return domain.Cart{SessionID: sessionID, Items: []domain.CartItem{}, Wishlist: []string{}}, nil
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (domain.Cart, error) {
	if cmd.Quantity <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	if err := s.validateItem(ctx, cmd); err != nil {
		return domain.Cart{}, err
	}
	return s.mutate(ctx, cmd.SessionID, func(cart *domain.Cart) error {
		idx := findCartLine(cart.Items, cmd.ProductID, cmd.Size)
		if idx < 0 {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: cmd.ProductID, Size: cmd.Size, Quantity: min(cmd.Quantity, maxCartLineQuantity)})
			return nil
		}
		cart.Items[idx].Quantity = min(cart.Items[idx].Quantity+cmd.Quantity, maxCartLineQuantity)
		return nil
	})
}

func (s *cartService) UpdateQuantity(ctx context.Context, cmd CartItemCommand) (domain.Cart, error) {
	if cmd.Quantity < 0 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must not be negative", ErrCartInvalidInput)
	}
	return s.mutate(ctx, cmd.SessionID, func(cart *domain.Cart) error {
		idx := findCartLine(cart.Items, cmd.ProductID, cmd.Size)
		if idx < 0 {
			return fmt.Errorf("%w: %s (%s)", ErrCartItemNotFound, cmd.ProductID, cmd.Size)
		}
		if cmd.Quantity == 0 {
			cart.Items = slices.Delete(cart.Items, idx, idx+1)
			return nil
		}
		cart.Items[idx].Quantity = min(cmd.Quantity, maxCartLineQuantity)
		return nil
	})
}

func (s *cartService) RemoveItem(ctx context.Context, cmd CartItemCommand) (domain.Cart, error) {
	return s.mutate(ctx, cmd.SessionID, func(cart *domain.Cart) error {
		idx := findCartLine(cart.Items, cmd.ProductID, cmd.Size)
		if idx < 0 {
			return fmt.Errorf("%w: %s (%s)", ErrCartItemNotFound, cmd.ProductID, cmd.Size)
		}
		cart.Items = slices.Delete(cart.Items, idx, idx+1)
		return nil
	})
}

// Clear empties the cart but keeps the wishlist.
func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	_, err := s.mutate(ctx, sessionID, func(cart *domain.Cart) error {
		cart.Items = []domain.CartItem{}
		return nil
	})
	if err == nil && s.tracker != nil {
		s.tracker.Forget(strings.TrimSpace(sessionID))
	}
	return err
}

func (s *cartService) ToggleWishlist(ctx context.Context, sessionID, productID string) (domain.Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, sessionID, func(cart *domain.Cart) error {
		if idx := slices.Index(cart.Wishlist, productID); idx >= 0 {
			cart.Wishlist = slices.Delete(cart.Wishlist, idx, idx+1)
			return nil
		}
		if _, err := s.products.FindByID(ctx, productID); err != nil {
			return s.mapProductError(err, productID)
		}
		cart.Wishlist = append(cart.Wishlist, productID)
		return nil
	})
}

func (s *cartService) mutate(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := fn(&cart); err != nil {
		return domain.Cart{}, err
	}
	cart.UpdatedAt = s.clock()
	if err := s.store.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: save %s: %w", cart.SessionID, err)
	}
	return cart, nil
}

func (s *cartService) validateItem(ctx context.Context, cmd CartItemCommand) error {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	product, err := s.products.FindByID(ctx, cmd.ProductID)
	if err != nil {
		return s.mapProductError(err, cmd.ProductID)
	}
	if len(product.Sizes) > 0 && !product.HasSize(cmd.Size) {
		return fmt.Errorf("%w: size %q is not offered for %s", ErrCartInvalidInput, cmd.Size, cmd.ProductID)
	}
	return nil
}

func (s *cartService) mapProductError(err error, productID string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
	}
	return err
}

func findCartLine(items []domain.CartItem, productID, size string) int {
	return slices.IndexFunc(items, func(item domain.CartItem) bool {
		return item.ProductID == productID && item.Size == size
	})
}

// MemoryCartStore keeps carts in process memory. Intended for local development and tests.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewMemoryCartStore constructs an empty in-memory cart store.
func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]domain.Cart)}
}

func (m *MemoryCartStore) Load(_ context.Context, sessionID string) (domain.Cart, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.carts[sessionID]
	if !ok {
		return domain.Cart{}, false, nil
	}
	return cloneCart(cart), true, nil
}

func (m *MemoryCartStore) Save(_ context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.SessionID] = cloneCart(cart)
	return nil
}

func (m *MemoryCartStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = slices.Clone(cart.Items)
	cart.Wishlist = slices.Clone(cart.Wishlist)
	return cart
}
