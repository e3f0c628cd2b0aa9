package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/repositories"
	"github.com/threadcart/storefront/internal/shipping"
)

var (
	// ErrPricingInvalidInput signals bad cart lines such as non-positive quantities or unknown sizes.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound is returned when a cart line references a missing product.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrShippingUnavailable wraps failures of the shipping-rate API.
	ErrShippingUnavailable = errors.New("pricing: shipping rates unavailable")
	// ErrShippingQuoteStale is returned when a newer quote request superseded this one.
	ErrShippingQuoteStale = errors.New("pricing: shipping quote superseded")
)

var (
	defaultUnitWeightKg = decimal.RequireFromString("0.5")
	jacketExtraWeightKg = decimal.NewFromInt(2)
	oneHundred          = decimal.NewFromInt(100)
)

const jacketKeyword = "Jacket"

// ApplyDiscount returns the price after applying offer, rounded to two decimal places.
// Fixed discounts never take the price below zero.
func ApplyDiscount(price decimal.Decimal, offer domain.Offer) decimal.Decimal {
	switch offer.DiscountType {
	case domain.DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(offer.DiscountValue.Div(oneHundred))
		if factor.IsNegative() {
			factor = decimal.Zero
		}
		return domain.RoundMoney(price.Mul(factor))
	case domain.DiscountTypeFixed:
		discounted := price.Sub(offer.DiscountValue)
		if discounted.IsNegative() {
			return decimal.Zero
		}
		return domain.RoundMoney(discounted)
	default:
		return domain.RoundMoney(price)
	}
}

// SelectOffer picks the offer granting the largest discount on product. Ties prefer
// product-scoped offers over category-scoped ones, then the smallest offer id.
func SelectOffer(product domain.Product, offers []domain.Offer) (domain.Offer, bool) {
	var (
		best      domain.Offer
		bestPrice decimal.Decimal
		found     bool
	)
	for _, offer := range offers {
		if !offer.IsActive || !offer.Targets(product) {
			continue
		}
		price := ApplyDiscount(product.Price, offer)
		if !found || offerBeats(price, offer, bestPrice, best) {
			best = offer
			bestPrice = price
			found = true
		}
	}
	return best, found
}

func offerBeats(price decimal.Decimal, offer domain.Offer, bestPrice decimal.Decimal, best domain.Offer) bool {
	if cmp := price.Cmp(bestPrice); cmp != 0 {
		return cmp < 0
	}
	if offer.AppliesTo != best.AppliesTo {
		return offer.AppliesTo == domain.OfferScopeProducts
	}
	return offer.ID < best.ID
}

// DiscountedPrice returns the product price after its best applicable offer.
func DiscountedPrice(product domain.Product, offers []domain.Offer) decimal.Decimal {
	offer, ok := SelectOffer(product, offers)
	if !ok {
		return domain.RoundMoney(product.Price)
	}
	return ApplyDiscount(product.Price, offer)
}

// EstimateParcelWeight approximates the parcel weight in kilograms from product names.
func EstimateParcelWeight(lines []PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		unit := defaultUnitWeightKg
		if strings.Contains(line.Product.Name, jacketKeyword) {
			unit = unit.Add(jacketExtraWeightKg)
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(line.Item.Quantity))))
	}
	return total
}

// PricingServiceDeps bundles collaborators required by the pricing service.
type PricingServiceDeps struct {
	Products repositories.ProductRepository
	Offers   repositories.OfferRepository
	Shipping ShippingRateSource
	Tracker  *QuoteTracker
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	products repositories.ProductRepository
	offers   repositories.OfferRepository
	shipping ShippingRateSource
	tracker  *QuoteTracker
	logger   func(context.Context, string, map[string]any)
}

// NewPricingService constructs the pricing service.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing service: product repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("pricing service: offer repository is required")
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewQuoteTracker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingService{
		products: deps.Products,
		offers:   deps.Offers,
		shipping: deps.Shipping,
		tracker:  tracker,
		logger:   logger,
	}, nil
}

func (s *pricingService) PriceCart(ctx context.Context, cmd PriceCartCommand) (CartPricing, error) {
	pricing := CartPricing{
		Subtotal:           decimal.Zero,
		Discount:           decimal.Zero,
		DiscountedSubtotal: decimal.Zero,
		WeightKg:           decimal.Zero,
		ShippingRate:       decimal.Zero,
		Total:              decimal.Zero,
	}
	if len(cmd.Items) == 0 {
		return pricing, nil
	}

	lines, err := s.priceLines(ctx, cmd.Items)
	if err != nil {
		return CartPricing{}, err
	}
	pricing.Lines = lines

	subtotal := decimal.Zero
	discounted := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Item.Quantity))
		subtotal = subtotal.Add(line.UnitPrice.Mul(qty))
		discounted = discounted.Add(line.LineTotal)
	}
	pricing.Subtotal = domain.RoundMoney(subtotal)
	pricing.DiscountedSubtotal = domain.RoundMoney(discounted)
	pricing.Discount = domain.RoundMoney(subtotal.Sub(discounted))
	pricing.WeightKg = EstimateParcelWeight(lines)

	options, err := s.rates(ctx, domain.ShippingRateQuery{
		DeliveryPostcode: strings.TrimSpace(cmd.Postcode),
		CashOnDelivery:   cmd.CashOnDelivery,
		WeightKg:         pricing.WeightKg,
		DeclaredValue:    pricing.DiscountedSubtotal,
	})
	if err != nil {
		return CartPricing{}, err
	}
	pricing.ShippingOptions = options

	if courier := strings.TrimSpace(cmd.CourierID); courier != "" {
		for i := range options {
			if options[i].CourierID == courier {
				selected := options[i]
				pricing.SelectedShipping = &selected
				pricing.ShippingRate = domain.RoundMoney(selected.Rate)
				pricing.Ready = true
				break
			}
		}
	}

	pricing.Total = domain.RoundMoney(pricing.DiscountedSubtotal.Add(pricing.ShippingRate))
	return pricing, nil
}

func (s *pricingService) QuoteShipping(ctx context.Context, cmd QuoteShippingCommand) (ShippingQuote, error) {
	key := strings.TrimSpace(cmd.SessionKey)
	generation := s.tracker.Begin(key)

	var (
		lines []PricedLine
		err   error
	)
	if len(cmd.Items) > 0 {
		lines, err = s.priceLines(ctx, cmd.Items)
		if err != nil {
			return ShippingQuote{}, err
		}
	}
	declared := decimal.Zero
	for _, line := range lines {
		declared = declared.Add(line.LineTotal)
	}

	options, err := s.rates(ctx, domain.ShippingRateQuery{
		DeliveryPostcode: strings.TrimSpace(cmd.Postcode),
		CashOnDelivery:   cmd.CashOnDelivery,
		WeightKg:         EstimateParcelWeight(lines),
		DeclaredValue:    domain.RoundMoney(declared),
	})
	if !s.tracker.IsCurrent(key, generation) {
		s.logger(ctx, "pricing.shipping.quote.stale", map[string]any{
			"session":    key,
			"generation": generation,
		})
		return ShippingQuote{}, fmt.Errorf("%w: generation %d", ErrShippingQuoteStale, generation)
	}
	if err != nil {
		return ShippingQuote{}, err
	}
	return ShippingQuote{Generation: generation, Options: options}, nil
}

func (s *pricingService) PriceProducts(ctx context.Context, products []domain.Product) ([]PricedProduct, error) {
	if len(products) == 0 {
		return []PricedProduct{}, nil
	}
	offers, err := s.offers.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("pricing: load offers: %w", err)
	}
	result := make([]PricedProduct, 0, len(products))
	for _, product := range products {
		priced := PricedProduct{Product: product, DiscountedPrice: domain.RoundMoney(product.Price)}
		if offer, ok := SelectOffer(product, offers); ok {
			priced.DiscountedPrice = ApplyDiscount(product.Price, offer)
			priced.OfferID = offer.ID
		}
		result = append(result, priced)
	}
	return result, nil
}

func (s *pricingService) priceLines(ctx context.Context, items []domain.CartItem) ([]PricedLine, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrPricingInvalidInput, item.ProductID)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("pricing: load products: %w", err)
	}
	offers, err := s.offers.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("pricing: load offers: %w", err)
	}

	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPricingProductNotFound, item.ProductID)
		}
		if len(product.Sizes) > 0 && !product.HasSize(item.Size) {
			return nil, fmt.Errorf("%w: size %q is not offered for %s", ErrPricingInvalidInput, item.Size, item.ProductID)
		}
		line := PricedLine{
			Item:            item,
			Product:         product,
			UnitPrice:       domain.RoundMoney(product.Price),
			DiscountedPrice: domain.RoundMoney(product.Price),
		}
		if offer, ok := SelectOffer(product, offers); ok {
			line.DiscountedPrice = ApplyDiscount(product.Price, offer)
			line.OfferID = offer.ID
		}
		line.LineTotal = line.DiscountedPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *pricingService) rates(ctx context.Context, query domain.ShippingRateQuery) ([]domain.ShippingOption, error) {
	if s.shipping == nil || !domain.ValidPostcode(query.DeliveryPostcode) {
		return []domain.ShippingOption{}, nil
	}
	options, err := s.shipping.Rates(ctx, query)
	if err != nil {
		s.logger(ctx, "pricing.shipping.rates.failed", map[string]any{
			"postcode": query.DeliveryPostcode,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}
	sorted := append([]domain.ShippingOption(nil), options...)
	shipping.SortOptions(sorted)
	return sorted, nil
}

const defaultQuoteIdleTTL = time.Hour

// QuoteTracker hands out per-session request generations so that only the newest
// shipping quote for a session is accepted. Sessions idle for longer than the idle TTL
// are pruned as new requests arrive.
type QuoteTracker struct {
	mu          sync.Mutex
	generations map[string]quoteGeneration
	idleTTL     time.Duration
	clock       func() time.Time
	nextPrune   time.Time
}

type quoteGeneration struct {
	value   uint64
	touched time.Time
}

// QuoteTrackerOption customises a QuoteTracker.
type QuoteTrackerOption func(*QuoteTracker)

// WithQuoteIdleTTL sets how long a session's generation is kept after its last request.
func WithQuoteIdleTTL(ttl time.Duration) QuoteTrackerOption {
	return func(t *QuoteTracker) {
		if ttl > 0 {
			t.idleTTL = ttl
		}
	}
}

func WithQuoteClock(clock func() time.Time) QuoteTrackerOption {
	return func(t *QuoteTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewQuoteTracker constructs an empty tracker.
func NewQuoteTracker(opts ...QuoteTrackerOption) *QuoteTracker {
	t := &QuoteTracker{
		generations: make(map[string]quoteGeneration),
		idleTTL:     defaultQuoteIdleTTL,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Begin registers a new request for key and returns its generation.
func (t *QuoteTracker) Begin(key string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.pruneLocked(now)
	gen := t.generations[key]
	gen.value++
	gen.touched = now
	t.generations[key] = gen
	return gen.value
}

// IsCurrent reports whether generation is still the newest request for key.
func (t *QuoteTracker) IsCurrent(key string, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generations[key].value == generation
}

// Forget drops the generation state for key.
func (t *QuoteTracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.generations, key)
}

// Len reports how many sessions are tracked.
func (t *QuoteTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.generations)
}

// pruneLocked drops idle sessions, scanning at most once per half TTL.
func (t *QuoteTracker) pruneLocked(now time.Time) {
	if now.Before(t.nextPrune) {
		return
	}
	t.nextPrune = now.Add(t.idleTTL / 2)
	cutoff := now.Add(-t.idleTTL)
	for key, gen := range t.generations {
		if gen.touched.Before(cutoff) {
			delete(t.generations, key)
		}
	}
}
