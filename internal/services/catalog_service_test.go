package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
)

func productFixture(id, name, price string, sizes ...string) domain.Product {
	return domain.Product{ID: id, Name: name, Price: dec(price), Category: "Shirts", Sizes: sizes}
}

type stubReelRepo struct {
	reels []domain.Reel
}

func (s *stubReelRepo) Insert(_ context.Context, reel domain.Reel) error {
	s.reels = append(s.reels, reel)
	return nil
}

func (s *stubReelRepo) Delete(_ context.Context, reelID string) error {
	for i, reel := range s.reels {
		if reel.ID == reelID {
			s.reels = append(s.reels[:i], s.reels[i+1:]...)
			return nil
		}
	}
	return &stubRepoError{notFound: true}
}

func (s *stubReelRepo) List(_ context.Context, limit int) ([]domain.Reel, error) {
	if len(s.reels) > limit {
		return s.reels[:limit], nil
	}
	return s.reels, nil
}

type stubUploader struct {
	requests []MediaUploadRequest
	err      error
}

func (s *stubUploader) SignUpload(_ context.Context, req MediaUploadRequest) (UploadURL, error) {
	if s.err != nil {
		return UploadURL{}, s.err
	}
	s.requests = append(s.requests, req)
	key := "media/" + string(req.Kind) + "/" + req.UploadID + "/" + req.FileName
	return UploadURL{UploadURL: "https://signed.example/" + key, Method: "PUT", PublicURL: "https://cdn.example/" + key, ObjectKey: key}, nil
}

type catalogFixture struct {
	svc      CatalogService
	products *stubProductRepo
	offers   *stubOfferRepo
	reels    *stubReelRepo
	uploader *stubUploader
	now      time.Time
}

func newCatalogFixture(t *testing.T, products ...domain.Product) *catalogFixture {
	t.Helper()
	fx := &catalogFixture{
		products: newStubProductRepo(products...),
		offers:   &stubOfferRepo{},
		reels:    &stubReelRepo{},
		uploader: &stubUploader{},
		now:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	pricing, err := NewPricingService(PricingServiceDeps{Products: fx.products, Offers: fx.offers})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    fx.products,
		Offers:      fx.offers,
		Reels:       fx.reels,
		Pricing:     pricing,
		Uploader:    fx.uploader,
		Clock:       func() time.Time { return fx.now },
		IDGenerator: func() string { return "01CAT" },
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	fx.svc = svc
	return fx
}

func TestCatalogService_UpdateWithoutChangesDoesNotWrite(t *testing.T) {
	original := productFixture("prd_1", "Linen Shirt", "49.99", "S", "M")
	original.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fx := newCatalogFixture(t, original)

	product, err := fx.svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ID:       "prd_1",
		Name:     " Linen Shirt ",
		Price:    dec("49.990"),
		Category: "Shirts",
		Sizes:    []string{"S", "M"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.products.updates != 0 {
		t.Fatalf("expected no write, got %d updates", fx.products.updates)
	}
	if !product.UpdatedAt.Equal(original.UpdatedAt) {
		t.Fatalf("expected UpdatedAt untouched, got %v", product.UpdatedAt)
	}

	product, err = fx.svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ID:       "prd_1",
		Name:     "Linen Shirt",
		Price:    dec("39.99"),
		Category: "Shirts",
		Sizes:    []string{"S", "M"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.products.updates != 1 || !product.UpdatedAt.Equal(fx.now) {
		t.Fatalf("expected one write with new UpdatedAt, got %d / %v", fx.products.updates, product.UpdatedAt)
	}
}

func TestCatalogService_CreateProductValidation(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	cases := []UpsertProductCommand{
		{Name: "", Price: dec("10"), Sizes: []string{"M"}},
		{Name: "Tee", Price: dec("-1"), Sizes: []string{"M"}},
		{Name: "Tee", Price: dec("10"), Sizes: []string{" "}},
	}
	for _, cmd := range cases {
		if _, err := fx.svc.CreateProduct(ctx, cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", cmd, err)
		}
	}

	product, err := fx.svc.CreateProduct(ctx, UpsertProductCommand{Name: "Tee", Price: dec("10"), Sizes: []string{"M", "M", "L"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ID != "prd_01CAT" || len(product.Sizes) != 2 {
		t.Fatalf("unexpected product %+v", product)
	}
}

func TestCatalogService_ListProductsAppliesOffers(t *testing.T) {
	fx := newCatalogFixture(t, productFixture("prd_1", "Tee", "100", "M"))
	ctx := context.Background()

	offer, err := fx.svc.CreateOffer(ctx, UpsertOfferCommand{
		Name:          "Summer",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: dec("20"),
		AppliesTo:     domain.OfferScopeCategories,
		TargetIDs:     []string{"Shirts"},
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	priced, err := fx.svc.ListProducts(ctx, ProductListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(priced) != 1 || !priced[0].DiscountedPrice.Equal(dec("80")) || priced[0].OfferID != offer.ID {
		t.Fatalf("unexpected priced products %+v", priced)
	}
}

func TestCatalogService_OfferValidation(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	cases := []UpsertOfferCommand{
		{Name: "x", DiscountType: domain.DiscountTypePercentage, DiscountValue: dec("120"), AppliesTo: domain.OfferScopeProducts, TargetIDs: []string{"p"}},
		{Name: "x", DiscountType: domain.DiscountTypeFixed, DiscountValue: dec("-5"), AppliesTo: domain.OfferScopeProducts, TargetIDs: []string{"p"}},
		{Name: "x", DiscountType: "bogo", DiscountValue: dec("5"), AppliesTo: domain.OfferScopeProducts, TargetIDs: []string{"p"}},
		{Name: "x", DiscountType: domain.DiscountTypeFixed, DiscountValue: dec("5"), AppliesTo: "brands", TargetIDs: []string{"p"}},
		{Name: "x", DiscountType: domain.DiscountTypeFixed, DiscountValue: dec("5"), AppliesTo: domain.OfferScopeProducts},
	}
	for _, cmd := range cases {
		if _, err := fx.svc.CreateOffer(ctx, cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", cmd, err)
		}
	}
}

func TestCatalogService_Reels(t *testing.T) {
	fx := newCatalogFixture(t, productFixture("prd_1", "Tee", "10", "M"))
	ctx := context.Background()

	if _, err := fx.svc.CreateReel(ctx, CreateReelCommand{Title: "Drop", VideoURL: "https://cdn/v.mp4", ProductIDs: []string{"prd_missing"}}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected unknown product error, got %v", err)
	}
	reel, err := fx.svc.CreateReel(ctx, CreateReelCommand{Title: "Drop", VideoURL: "https://cdn/v.mp4", ProductIDs: []string{"prd_1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reels, _ := fx.svc.ListReels(ctx, 0)
	if len(reels) != 1 || reels[0].ID != reel.ID {
		t.Fatalf("unexpected reels %+v", reels)
	}
	if err := fx.svc.DeleteReel(ctx, "rel_missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogService_CreateUploadURL(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	upload, err := fx.svc.CreateUploadURL(ctx, UploadURLCommand{Kind: UploadKindProductImage, FileName: "../../shirt.png", ContentType: "IMAGE/PNG"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := fx.uploader.requests[0]
	if req.FileName != "shirt.png" || req.ContentType != "image/png" || req.UploadID != "upl_01CAT" {
		t.Fatalf("unexpected upload request %+v", req)
	}
	if upload.PublicURL == "" || upload.Method != "PUT" {
		t.Fatalf("unexpected upload %+v", upload)
	}

	if _, err := fx.svc.CreateUploadURL(ctx, UploadURLCommand{Kind: UploadKindReelVideo, FileName: "clip.png", ContentType: "image/png"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected content type rejection, got %v", err)
	}
	if _, err := fx.svc.CreateUploadURL(ctx, UploadURLCommand{Kind: "avatar", FileName: "a.png", ContentType: "image/png"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected unknown kind rejection, got %v", err)
	}
}
