package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/threadcart/storefront/internal/domain"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
	"github.com/threadcart/storefront/internal/repositories"
)

const (
	defaultProductLimit = 200
	maxProductLimit     = 500
)

type productDocument struct {
	Name        string    `firestore:"name"`
	Price       string    `firestore:"price"`
	Category    string    `firestore:"category"`
	Sizes       []string  `firestore:"sizes"`
	Images      []string  `firestore:"images"`
	Rating      float64   `firestore:"rating"`
	ReviewCount int       `firestore:"reviewCount"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// ProductRepository implements repositories.ProductRepository.
type ProductRepository struct {
	products *pfirestore.Collection[domain.Product]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if err := requireProvider(provider, "product"); err != nil {
		return nil, err
	}
	return &ProductRepository{
		products: pfirestore.NewCollection(provider, productsCollection, encodeAs(toProductDocument), decodeWith(fromProductDocument)),
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.products.Create(ctx, product.ID, product)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	return r.products.Replace(ctx, product.ID, product)
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.products.Delete(ctx, productID)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	return r.products.Get(ctx, productID)
}

// FindByIDs omits ids that do not exist.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	return r.products.GetAll(ctx, productIDs)
}

// List returns products alphabetically, optionally restricted to one category.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	limit := clampLimit(filter.Limit, defaultProductLimit, maxProductLimit)
	return r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Category != "" {
			q = q.Where("category", "==", filter.Category)
		}
		return q.OrderBy("name", firestore.Asc).Limit(limit)
	})
}

func toProductDocument(p domain.Product) productDocument {
	return productDocument{
		Name:        p.Name,
		Price:       encodeMoney(p.Price),
		Category:    p.Category,
		Sizes:       p.Sizes,
		Images:      p.Images,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func fromProductDocument(id string, doc productDocument) (domain.Product, error) {
	price, err := decodeMoney("price", doc.Price)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Price:       price,
		Category:    doc.Category,
		Sizes:       doc.Sizes,
		Images:      doc.Images,
		Rating:      doc.Rating,
		ReviewCount: doc.ReviewCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
