package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/repositories"
)

const (
	productIDPrefix = "prd_"
	offerIDPrefix   = "off_"
	reelIDPrefix    = "rel_"
	uploadIDPrefix  = "upl_"

	defaultCatalogListLimit = 200
	defaultReelListLimit    = 20
)

var (
	// ErrCatalogInvalidInput signals invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound is returned when a product, offer or reel does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict is returned for duplicate identifiers.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUploadsDisabled is returned when no media uploader is configured.
	ErrCatalogUploadsDisabled = errors.New("catalog: uploads are not configured")
)

var uploadContentTypes = map[UploadKind][]string{
	UploadKindProductImage: {"image/jpeg", "image/png", "image/webp", "image/avif"},
	UploadKindReelVideo:    {"video/mp4", "video/webm", "video/quicktime"},
}

// AllowedUploadContentTypes lists the content types accepted for kind.
func AllowedUploadContentTypes(kind UploadKind) []string {
	return slices.Clone(uploadContentTypes[kind])
}

// CatalogServiceDeps bundles collaborators required by the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Offers      repositories.OfferRepository
	Reels       repositories.ReelRepository
	Pricing     PricingService
	Uploader    MediaUploader
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	offers   repositories.OfferRepository
	reels    repositories.ReelRepository
	pricing  PricingService
	uploader MediaUploader
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("catalog service: offer repository is required")
	}
	if deps.Reels == nil {
		return nil, errors.New("catalog service: reel repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("catalog service: pricing service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products: deps.Products,
		offers:   deps.Offers,
		reels:    deps.Reels,
		pricing:  deps.Pricing,
		uploader: deps.Uploader,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]PricedProduct, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultCatalogListLimit {
		limit = defaultCatalogListLimit
	}
	products, err := s.products.List(ctx, repositories.ProductListFilter{
		Category: strings.TrimSpace(filter.Category),
		Limit:    limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return s.pricing.PriceProducts(ctx, products)
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (PricedProduct, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return PricedProduct{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return PricedProduct{}, s.mapRepositoryError(err)
	}
	priced, err := s.pricing.PriceProducts(ctx, []domain.Product{product})
	if err != nil {
		return PricedProduct{}, err
	}
	return priced[0], nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	product, err := normalizeProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}
	now := s.clock()
	product.ID = productIDPrefix + s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now
	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

// UpdateProduct writes only when a field actually changed, so saving an untouched edit form leaves
// the stored product and its UpdatedAt as they were.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	productID := strings.TrimSpace(cmd.ID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	next, err := normalizeProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}
	current, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	if sameProductFields(current, next) {
		return current, nil
	}

	updated := current
	updated.Name = next.Name
	updated.Price = next.Price
	updated.Category = next.Category
	updated.Sizes = next.Sizes
	updated.Images = next.Images
	updated.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, updated); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) ListOffers(ctx context.Context, activeOnly bool) ([]domain.Offer, error) {
	offers, err := s.offers.List(ctx, activeOnly)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return offers, nil
}

func (s *catalogService) CreateOffer(ctx context.Context, cmd UpsertOfferCommand) (domain.Offer, error) {
	offer, err := normalizeOffer(cmd)
	if err != nil {
		return domain.Offer{}, err
	}
	now := s.clock()
	offer.ID = offerIDPrefix + s.newID()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	if err := s.offers.Insert(ctx, offer); err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}
	return offer, nil
}

func (s *catalogService) UpdateOffer(ctx context.Context, cmd UpsertOfferCommand) (domain.Offer, error) {
	offerID := strings.TrimSpace(cmd.ID)
	if offerID == "" {
		return domain.Offer{}, fmt.Errorf("%w: offer id is required", ErrCatalogInvalidInput)
	}
	next, err := normalizeOffer(cmd)
	if err != nil {
		return domain.Offer{}, err
	}
	current, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}
	if sameOfferFields(current, next) {
		return current, nil
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.clock()
	if err := s.offers.Update(ctx, next); err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}
	return next, nil
}

func (s *catalogService) DeleteOffer(ctx context.Context, offerID string) error {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return fmt.Errorf("%w: offer id is required", ErrCatalogInvalidInput)
	}
	if err := s.offers.Delete(ctx, offerID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) ListReels(ctx context.Context, limit int) ([]domain.Reel, error) {
	if limit <= 0 || limit > defaultCatalogListLimit {
		limit = defaultReelListLimit
	}
	reels, err := s.reels.List(ctx, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return reels, nil
}

func (s *catalogService) CreateReel(ctx context.Context, cmd CreateReelCommand) (domain.Reel, error) {
	title := strings.TrimSpace(cmd.Title)
	videoURL := strings.TrimSpace(cmd.VideoURL)
	if title == "" || videoURL == "" {
		return domain.Reel{}, fmt.Errorf("%w: reel title and video url are required", ErrCatalogInvalidInput)
	}
	productIDs := compactStrings(cmd.ProductIDs)
	if len(productIDs) > 0 {
		found, err := s.products.FindByIDs(ctx, productIDs)
		if err != nil {
			return domain.Reel{}, s.mapRepositoryError(err)
		}
		for _, id := range productIDs {
			if _, ok := found[id]; !ok {
				return domain.Reel{}, fmt.Errorf("%w: reel references unknown product %s", ErrCatalogInvalidInput, id)
			}
		}
	}
	reel := domain.Reel{
		ID:         reelIDPrefix + s.newID(),
		Title:      title,
		VideoURL:   videoURL,
		ProductIDs: productIDs,
		CreatedAt:  s.clock(),
	}
	if err := s.reels.Insert(ctx, reel); err != nil {
		return domain.Reel{}, s.mapRepositoryError(err)
	}
	return reel, nil
}

func (s *catalogService) DeleteReel(ctx context.Context, reelID string) error {
	reelID = strings.TrimSpace(reelID)
	if reelID == "" {
		return fmt.Errorf("%w: reel id is required", ErrCatalogInvalidInput)
	}
	if err := s.reels.Delete(ctx, reelID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) CreateUploadURL(ctx context.Context, cmd UploadURLCommand) (UploadURL, error) {
	if s.uploader == nil {
		return UploadURL{}, ErrCatalogUploadsDisabled
	}
	allowed, ok := uploadContentTypes[cmd.Kind]
	if !ok {
		return UploadURL{}, fmt.Errorf("%w: unknown upload kind %q", ErrCatalogInvalidInput, cmd.Kind)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !slices.Contains(allowed, contentType) {
		return UploadURL{}, fmt.Errorf("%w: content type %q is not allowed for %s", ErrCatalogInvalidInput, cmd.ContentType, cmd.Kind)
	}
	fileName := path.Base(strings.TrimSpace(cmd.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return UploadURL{}, fmt.Errorf("%w: file name is required", ErrCatalogInvalidInput)
	}

	upload, err := s.uploader.SignUpload(ctx, MediaUploadRequest{
		Kind:        cmd.Kind,
		UploadID:    uploadIDPrefix + s.newID(),
		FileName:    fileName,
		ContentType: contentType,
	})
	if err != nil {
		s.logger(ctx, "catalog.upload.sign.failed", map[string]any{
			"kind":  string(cmd.Kind),
			"error": err.Error(),
		})
		return UploadURL{}, fmt.Errorf("catalog: sign upload: %w", err)
	}
	return upload, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}

func normalizeProduct(cmd UpsertProductCommand) (domain.Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	sizes := compactStrings(cmd.Sizes)
	if len(sizes) == 0 {
		return domain.Product{}, fmt.Errorf("%w: at least one size is required", ErrCatalogInvalidInput)
	}
	return domain.Product{
		Name:     name,
		Price:    domain.RoundMoney(cmd.Price),
		Category: strings.TrimSpace(cmd.Category),
		Sizes:    sizes,
		Images:   compactStrings(cmd.Images),
	}, nil
}

func sameProductFields(a, b domain.Product) bool {
	return a.Name == b.Name &&
		a.Price.Equal(b.Price) &&
		a.Category == b.Category &&
		slices.Equal(a.Sizes, b.Sizes) &&
		slices.Equal(a.Images, b.Images)
}

func normalizeOffer(cmd UpsertOfferCommand) (domain.Offer, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Offer{}, fmt.Errorf("%w: offer name is required", ErrCatalogInvalidInput)
	}
	switch cmd.DiscountType {
	case domain.DiscountTypePercentage:
		if cmd.DiscountValue.IsNegative() || cmd.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Offer{}, fmt.Errorf("%w: percentage must be between 0 and 100", ErrCatalogInvalidInput)
		}
	case domain.DiscountTypeFixed:
		if cmd.DiscountValue.IsNegative() {
			return domain.Offer{}, fmt.Errorf("%w: fixed discount must not be negative", ErrCatalogInvalidInput)
		}
	default:
		return domain.Offer{}, fmt.Errorf("%w: unknown discount type %q", ErrCatalogInvalidInput, cmd.DiscountType)
	}
	switch cmd.AppliesTo {
	case domain.OfferScopeProducts, domain.OfferScopeCategories:
	default:
		return domain.Offer{}, fmt.Errorf("%w: unknown offer scope %q", ErrCatalogInvalidInput, cmd.AppliesTo)
	}
	targets := compactStrings(cmd.TargetIDs)
	if len(targets) == 0 {
		return domain.Offer{}, fmt.Errorf("%w: offer needs at least one target", ErrCatalogInvalidInput)
	}
	return domain.Offer{
		Name:          name,
		DiscountType:  cmd.DiscountType,
		DiscountValue: cmd.DiscountValue,
		AppliesTo:     cmd.AppliesTo,
		TargetIDs:     targets,
		IsActive:      cmd.IsActive,
	}, nil
}

func sameOfferFields(a, b domain.Offer) bool {
	return a.Name == b.Name &&
		a.DiscountType == b.DiscountType &&
		a.DiscountValue.Equal(b.DiscountValue) &&
		a.AppliesTo == b.AppliesTo &&
		slices.Equal(a.TargetIDs, b.TargetIDs) &&
		a.IsActive == b.IsActive
}

// compactStrings trims values and drops blanks and duplicates, preserving order.
func compactStrings(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(result, value) {
			continue
		}
		result = append(result, value)
	}
	return result
}
