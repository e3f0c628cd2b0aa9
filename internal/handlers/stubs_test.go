package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/services"
)

type stubCatalogService struct {
	listProductsFunc func(ctx context.Context, filter services.ProductListFilter) ([]services.PricedProduct, error)
	getProductFunc   func(ctx context.Context, id string) (services.PricedProduct, error)
	createProductFn  func(ctx context.Context, cmd services.UpsertProductCommand) (domain.Product, error)
	listOffersFunc   func(ctx context.Context, activeOnly bool) ([]domain.Offer, error)
	createOfferFunc  func(ctx context.Context, cmd services.UpsertOfferCommand) (domain.Offer, error)
	uploadFunc       func(ctx context.Context, cmd services.UploadURLCommand) (services.UploadURL, error)
	deleted          []string
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) ([]services.PricedProduct, error) {
	if s.listProductsFunc != nil {
		return s.listProductsFunc(ctx, filter)
	}
	return nil, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id string) (services.PricedProduct, error) {
	if s.getProductFunc != nil {
		return s.getProductFunc(ctx, id)
	}
	return services.PricedProduct{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (domain.Product, error) {
	if s.createProductFn != nil {
		return s.createProductFn(ctx, cmd)
	}
	return domain.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(_ context.Context, cmd services.UpsertProductCommand) (domain.Product, error) {
	return domain.Product{ID: cmd.ID, Name: cmd.Name, Price: cmd.Price}, nil
}

func (s *stubCatalogService) DeleteProduct(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubCatalogService) ListOffers(ctx context.Context, activeOnly bool) ([]domain.Offer, error) {
	if s.listOffersFunc != nil {
		return s.listOffersFunc(ctx, activeOnly)
	}
	return nil, nil
}

func (s *stubCatalogService) CreateOffer(ctx context.Context, cmd services.UpsertOfferCommand) (domain.Offer, error) {
	if s.createOfferFunc != nil {
		return s.createOfferFunc(ctx, cmd)
	}
	return domain.Offer{}, nil
}

func (s *stubCatalogService) UpdateOffer(_ context.Context, cmd services.UpsertOfferCommand) (domain.Offer, error) {
	return domain.Offer{ID: cmd.ID}, nil
}

func (s *stubCatalogService) DeleteOffer(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubCatalogService) ListReels(context.Context, int) ([]domain.Reel, error) {
	return nil, nil
}

func (s *stubCatalogService) CreateReel(_ context.Context, cmd services.CreateReelCommand) (domain.Reel, error) {
	return domain.Reel{ID: "rel_1", Title: cmd.Title, VideoURL: cmd.VideoURL, ProductIDs: cmd.ProductIDs}, nil
}

func (s *stubCatalogService) DeleteReel(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubCatalogService) CreateUploadURL(ctx context.Context, cmd services.UploadURLCommand) (services.UploadURL, error) {
	if s.uploadFunc != nil {
		return s.uploadFunc(ctx, cmd)
	}
	return services.UploadURL{}, services.ErrCatalogUploadsDisabled
}

type stubCartService struct {
	carts    map[string]domain.Cart
	addFunc  func(ctx context.Context, cmd services.CartItemCommand) (domain.Cart, error)
	lastCmds []services.CartItemCommand
}

func (s *stubCartService) GetCart(_ context.Context, sessionID string) (domain.Cart, error) {
	if cart, ok := s.carts[sessionID]; ok {
		return cart, nil
	}
	return domain.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (domain.Cart, error) {
	s.lastCmds = append(s.lastCmds, cmd)
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return domain.Cart{SessionID: cmd.SessionID, Items: []domain.CartItem{{ProductID: cmd.ProductID, Size: cmd.Size, Quantity: cmd.Quantity}}}, nil
}

func (s *stubCartService) UpdateQuantity(_ context.Context, cmd services.CartItemCommand) (domain.Cart, error) {
	s.lastCmds = append(s.lastCmds, cmd)
	return domain.Cart{}, services.ErrCartItemNotFound
}

func (s *stubCartService) RemoveItem(_ context.Context, cmd services.CartItemCommand) (domain.Cart, error) {
	s.lastCmds = append(s.lastCmds, cmd)
	return domain.Cart{SessionID: cmd.SessionID}, nil
}

func (s *stubCartService) Clear(context.Context, string) error { return nil }

func (s *stubCartService) ToggleWishlist(_ context.Context, sessionID, productID string) (domain.Cart, error) {
	return domain.Cart{SessionID: sessionID, Wishlist: []string{productID}}, nil
}

type stubPricingService struct {
	priceFunc func(ctx context.Context, cmd services.PriceCartCommand) (services.CartPricing, error)
	quoteFunc func(ctx context.Context, cmd services.QuoteShippingCommand) (services.ShippingQuote, error)
}

func (s *stubPricingService) PriceCart(ctx context.Context, cmd services.PriceCartCommand) (services.CartPricing, error) {
	if s.priceFunc != nil {
		return s.priceFunc(ctx, cmd)
	}
	return services.CartPricing{}, nil
}

func (s *stubPricingService) QuoteShipping(ctx context.Context, cmd services.QuoteShippingCommand) (services.ShippingQuote, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, cmd)
	}
	return services.ShippingQuote{}, nil
}

func (s *stubPricingService) PriceProducts(context.Context, []domain.Product) ([]services.PricedProduct, error) {
	return nil, nil
}

type stubOrderService struct {
	orders        map[string]domain.Order
	listFunc      func(ctx context.Context, filter services.OrderListFilter) ([]domain.Order, error)
	transitionFn  func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error)
	returnFunc    func(ctx context.Context, cmd services.RequestReturnCommand) (domain.Order, error)
	subscription  *stubSubscription
	lastFilter    services.OrderListFilter
	notifications []domain.Notification
}

func (s *stubOrderService) GetOrder(_ context.Context, id string) (domain.Order, error) {
	if order, ok := s.orders[id]; ok {
		return order, nil
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) ([]domain.Order, error) {
	s.lastFilter = filter
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
}

func (s *stubOrderService) RequestReturn(ctx context.Context, cmd services.RequestReturnCommand) (domain.Order, error) {
	if s.returnFunc != nil {
		return s.returnFunc(ctx, cmd)
	}
	return domain.Order{ID: cmd.OrderID, Status: domain.OrderStatusReturnRequested}, nil
}

func (s *stubOrderService) SubscribeOrders(_ context.Context, filter services.OrderListFilter) (services.OrderSubscription, error) {
	s.lastFilter = filter
	if s.subscription == nil {
		return nil, services.ErrOrderInvalidInput
	}
	return s.subscription, nil
}

func (s *stubOrderService) ListNotifications(context.Context, string, int) ([]domain.Notification, error) {
	return s.notifications, nil
}

type stubSubscription struct {
	updates chan []domain.Order
	closed  bool
}

func (s *stubSubscription) Updates() <-chan []domain.Order { return s.updates }

func (s *stubSubscription) Close() { s.closed = true }

type stubPlacementService struct {
	placeFunc   func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacementResult, error)
	confirmFunc func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error)
	failFunc    func(ctx context.Context, cmd services.FailPaymentCommand) error
	webhookErr  error
	payloads    [][]byte
	signatures  []string
	failed      []services.FailPaymentCommand
	reconciled  int
	placeCalls  int
}

func (s *stubPlacementService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacementResult, error) {
	s.placeCalls++
	if s.placeFunc != nil {
		return s.placeFunc(ctx, cmd)
	}
	return services.PlacementResult{}, nil
}

func (s *stubPlacementService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
	if s.confirmFunc != nil {
		return s.confirmFunc(ctx, cmd)
	}
	return domain.Order{}, services.ErrPlacementPaymentNotFound
}

func (s *stubPlacementService) FailPayment(ctx context.Context, cmd services.FailPaymentCommand) error {
	s.failed = append(s.failed, cmd)
	if s.failFunc != nil {
		return s.failFunc(ctx, cmd)
	}
	return nil
}

func (s *stubPlacementService) ReconcilePayments(_ context.Context, limit int) (services.ReconcileResult, error) {
	s.reconciled = limit
	return services.ReconcileResult{Examined: 2, Recovered: []string{"ord_1"}, Expired: []string{"pi_old"}}, nil
}

func (s *stubPlacementService) HandlePaymentWebhook(_ context.Context, payload []byte, signature string) error {
	s.payloads = append(s.payloads, payload)
	s.signatures = append(s.signatures, signature)
	return s.webhookErr
}

type stubAddressService struct {
	profile  domain.Profile
	saved    []domain.Address
	geo      domain.GeoAddress
	geoErr   error
	getErr   error
	saveErr  error
	lastLat  float64
	lastLng  float64
}

func (s *stubAddressService) GetProfile(context.Context, string) (domain.Profile, error) {
	return s.profile, s.getErr
}

func (s *stubAddressService) SaveDefaultAddress(_ context.Context, userID string, address domain.Address) (domain.Profile, error) {
	if s.saveErr != nil {
		return domain.Profile{}, s.saveErr
	}
	s.saved = append(s.saved, address)
	return domain.Profile{UserID: userID, DefaultAddress: &address}, nil
}

func (s *stubAddressService) ReverseGeocode(_ context.Context, lat, lng float64) (domain.GeoAddress, error) {
	s.lastLat, s.lastLng = lat, lng
	return s.geo, s.geoErr
}

func (s *stubAddressService) ResolveShippingAddress(context.Context, string, bool, domain.Address) (domain.Address, error) {
	return domain.Address{}, nil
}

type stubAccountService struct {
	err   error
	calls int
}

func (s *stubAccountService) Register(_ context.Context, cmd services.RegisterCommand) (domain.Profile, error) {
	s.calls++
	if s.err != nil {
		return domain.Profile{}, s.err
	}
	return domain.Profile{UserID: "uid-1", Name: cmd.Name, Email: cmd.Email}, nil
}

type stubEmailService struct {
	enqueued   []services.EmailMessage
	delivered  []services.EmailMessage
	deliverErr error
	enqueueErr error
}

func (s *stubEmailService) Enqueue(_ context.Context, msg services.EmailMessage) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, msg)
	return nil
}

func (s *stubEmailService) Deliver(_ context.Context, msg services.EmailMessage) (string, error) {
	if s.deliverErr != nil {
		return "", s.deliverErr
	}
	s.delivered = append(s.delivered, msg)
	return "re_1", nil
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != code {
		t.Fatalf("expected error code %q, got %v", code, payload["error"])
	}
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
