package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/email"
)

// PricingService computes discounted prices, shipping and totals for carts.
type PricingService interface {
	PriceCart(ctx context.Context, cmd PriceCartCommand) (CartPricing, error)
	QuoteShipping(ctx context.Context, cmd QuoteShippingCommand) (ShippingQuote, error)
	PriceProducts(ctx context.Context, products []domain.Product) ([]PricedProduct, error)
}

// CartService manages the session-scoped cart and wishlist.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, cmd CartItemCommand) (domain.Cart, error)
	RemoveItem(ctx context.Context, cmd CartItemCommand) (domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
	ToggleWishlist(ctx context.Context, sessionID, productID string) (domain.Cart, error)
}

// CatalogService exposes the storefront catalog and its admin CRUD.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]PricedProduct, error)
	GetProduct(ctx context.Context, productID string) (PricedProduct, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ListOffers(ctx context.Context, activeOnly bool) ([]domain.Offer, error)
	CreateOffer(ctx context.Context, cmd UpsertOfferCommand) (domain.Offer, error)
	UpdateOffer(ctx context.Context, cmd UpsertOfferCommand) (domain.Offer, error)
	DeleteOffer(ctx context.Context, offerID string) error

	ListReels(ctx context.Context, limit int) ([]domain.Reel, error)
	CreateReel(ctx context.Context, cmd CreateReelCommand) (domain.Reel, error)
	DeleteReel(ctx context.Context, reelID string) error

	CreateUploadURL(ctx context.Context, cmd UploadURLCommand) (UploadURL, error)
}

// OrderService owns the order lifecycle after placement.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error)
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (domain.Order, error)
	SubscribeOrders(ctx context.Context, filter OrderListFilter) (OrderSubscription, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// PlacementService turns a priced cart into an order.
type PlacementService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacementResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error)
	FailPayment(ctx context.Context, cmd FailPaymentCommand) error
	ReconcilePayments(ctx context.Context, limit int) (ReconcileResult, error)
	HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error
}

// AddressService resolves checkout addresses and customer profiles.
type AddressService interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	SaveDefaultAddress(ctx context.Context, userID string, address domain.Address) (domain.Profile, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeoAddress, error)
	ResolveShippingAddress(ctx context.Context, userID string, useDefault bool, manual domain.Address) (domain.Address, error)
}

// AccountService registers storefront customers.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterCommand) (domain.Profile, error)
}

// EmailService renders and dispatches transactional email.
type EmailService interface {
	Enqueue(ctx context.Context, msg EmailMessage) error
	Deliver(ctx context.Context, msg EmailMessage) (string, error)
}

// PriceCartCommand prices the given cart lines for delivery to Postcode.
type PriceCartCommand struct {
	Items          []domain.CartItem
	Postcode       string
	CashOnDelivery bool
	CourierID      string
}

// PricedLine is a cart line after discounts.
type PricedLine struct {
	Item            domain.CartItem
	Product         domain.Product
	UnitPrice       decimal.Decimal
	DiscountedPrice decimal.Decimal
	OfferID         string
	LineTotal       decimal.Decimal
}

// CartPricing is the full price breakdown of a cart. Ready is false until a shipping option
// has been selected, which blocks checkout.
type CartPricing struct {
	Lines              []PricedLine
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	WeightKg           decimal.Decimal
	ShippingOptions    []domain.ShippingOption
	SelectedShipping   *domain.ShippingOption
	ShippingRate       decimal.Decimal
	Total              decimal.Decimal
	Ready              bool
}

// QuoteShippingCommand requests courier options for the current cart. SessionKey scopes the
// request-generation token.
type QuoteShippingCommand struct {
	SessionKey     string
	Items          []domain.CartItem
	Postcode       string
	CashOnDelivery bool
}

// ShippingQuote is the result of a shipping lookup tagged with its generation.
type ShippingQuote struct {
	Generation uint64
	Options    []domain.ShippingOption
}

// PricedProduct is a product with its discounted storefront price.
type PricedProduct struct {
	Product         domain.Product
	DiscountedPrice decimal.Decimal
	OfferID         string
}

// CartItemCommand targets a cart line.
type CartItemCommand struct {
	SessionID string
	ProductID string
	Size      string
	Quantity  int
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category string
	Limit    int
}

// UpsertProductCommand creates or updates a product.
type UpsertProductCommand struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Sizes    []string
	Images   []string
}

// UpsertOfferCommand creates or updates an offer.
type UpsertOfferCommand struct {
	ID            string
	Name          string
	DiscountType  domain.DiscountType
	DiscountValue decimal.Decimal
	AppliesTo     domain.OfferScope
	TargetIDs     []string
	IsActive      bool
}

// CreateReelCommand creates a reel.
type CreateReelCommand struct {
	Title      string
	VideoURL   string
	ProductIDs []string
}

// UploadKind selects the storage prefix and allowed content types of an upload.
type UploadKind string

const (
	UploadKindProductImage UploadKind = "product-image"
	UploadKindReelVideo    UploadKind = "reel-video"
)

// UploadURLCommand requests a signed upload URL.
type UploadURLCommand struct {
	Kind        UploadKind
	FileName    string
	ContentType string
}

// MediaUploadRequest is handed to the media uploader once the catalog validated the upload.
type MediaUploadRequest struct {
	Kind        UploadKind
	UploadID    string
	FileName    string
	ContentType string
}

// MediaUploader issues signed upload URLs for catalog media.
type MediaUploader interface {
	SignUpload(ctx context.Context, req MediaUploadRequest) (UploadURL, error)
}

// UploadURL is a signed PUT URL and the public URL the object will be served from.
type UploadURL struct {
	UploadURL string
	Method    string
	Headers   map[string]string
	PublicURL string
	ObjectKey string
	ExpiresAt time.Time
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID string
	Status []domain.OrderStatus
	Limit  int
}

// OrderStatusTransitionCommand moves an order to TargetStatus. ExpectedStatus enables
// optimistic conflict detection against concurrent admin edits.
type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   domain.OrderStatus
	ExpectedStatus *domain.OrderStatus
	ActorID        string
}

// RequestReturnCommand is issued by the customer who owns the order.
type RequestReturnCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// OrderSubscription delivers the filtered order set whenever it changes.
type OrderSubscription interface {
	Updates() <-chan []domain.Order
	Close()
}

// PlaceOrderCommand carries the checkout form.
type PlaceOrderCommand struct {
	SessionID         string
	Customer          domain.Customer
	UseDefaultAddress bool
	Address           domain.Address
	PaymentMethod     domain.PaymentMethod
	CourierID         string
}

// PaymentHandle is what the client needs to open the hosted payment widget.
type PaymentHandle struct {
	GatewayOrderID string
	ClientSecret   string
	Amount         int64
	Currency       string
	OrderID        string
}

// PlacementResult holds the persisted order (COD) or the payment handle (Online).
type PlacementResult struct {
	Order   *domain.Order
	Payment *PaymentHandle
	Pricing CartPricing
}

// ConfirmPaymentCommand is sent by the payment widget success callback or the gateway webhook.
// UserID is the signed-in customer; it is empty only for gateway-originated calls.
type ConfirmPaymentCommand struct {
	GatewayOrderID string
	PaymentID      string
	UserID         string
}

// FailPaymentCommand records a failed or abandoned payment.
type FailPaymentCommand struct {
	GatewayOrderID string
	Reason         string
	UserID         string
}

// ReconcileResult summarises a reconciliation sweep. Recovered lists order ids, Expired and
// Failed list gateway order ids.
type ReconcileResult struct {
	Examined  int
	Recovered []string
	Expired   []string
	Failed    []string
}

// RegisterCommand creates an email and password account.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
}

// EmailMessage is a transactional email job.
type EmailMessage struct {
	JobID    string             `json:"jobId"`
	To       string             `json:"to"`
	Template email.TemplateName `json:"templateName"`
	Props    map[string]any     `json:"props"`
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	CurrentStatus  string    `json:"currentStatus"`
	ActorID        string    `json:"actorId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// EmailJobPublisher hands email jobs to the background queue.
type EmailJobPublisher interface {
	PublishEmailJob(ctx context.Context, msg EmailMessage) (string, error)
}

// EmailQueue is the narrow dependency services use to request email.
type EmailQueue interface {
	Enqueue(ctx context.Context, msg EmailMessage) error
}

// ShippingRateSource quotes courier options.
type ShippingRateSource interface {
	Rates(ctx context.Context, query domain.ShippingRateQuery) ([]domain.ShippingOption, error)
}

// CartStore is the persistence port behind the cart session store.
type CartStore interface {
	Load(ctx context.Context, sessionID string) (domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}
