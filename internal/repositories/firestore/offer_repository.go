package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/threadcart/storefront/internal/domain"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
	"github.com/threadcart/storefront/internal/repositories"
)

type offerDocument struct {
	Name          string    `firestore:"name"`
	DiscountType  string    `firestore:"discountType"`
	DiscountValue string    `firestore:"discountValue"`
	AppliesTo     string    `firestore:"appliesTo"`
	TargetIDs     []string  `firestore:"targetIds"`
	IsActive      bool      `firestore:"isActive"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// OfferRepository implements repositories.OfferRepository.
type OfferRepository struct {
	offers *pfirestore.Collection[domain.Offer]
}

var _ repositories.OfferRepository = (*OfferRepository)(nil)

func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if err := requireProvider(provider, "offer"); err != nil {
		return nil, err
	}
	return &OfferRepository{
		offers: pfirestore.NewCollection(provider, offersCollection, encodeAs(toOfferDocument), decodeWith(fromOfferDocument)),
	}, nil
}

func (r *OfferRepository) Insert(ctx context.Context, offer domain.Offer) error {
	return r.offers.Create(ctx, offer.ID, offer)
}

func (r *OfferRepository) Update(ctx context.Context, offer domain.Offer) error {
	return r.offers.Replace(ctx, offer.ID, offer)
}

func (r *OfferRepository) Delete(ctx context.Context, offerID string) error {
	return r.offers.Delete(ctx, offerID)
}

func (r *OfferRepository) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	return r.offers.Get(ctx, offerID)
}

// List returns offers oldest first so pricing tie-breaks stay stable.
func (r *OfferRepository) List(ctx context.Context, activeOnly bool) ([]domain.Offer, error) {
	return r.offers.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("isActive", "==", true)
		}
		return q.OrderBy("createdAt", firestore.Asc)
	})
}

func toOfferDocument(o domain.Offer) offerDocument {
	return offerDocument{
		Name:          o.Name,
		DiscountType:  string(o.DiscountType),
		DiscountValue: o.DiscountValue.String(),
		AppliesTo:     string(o.AppliesTo),
		TargetIDs:     o.TargetIDs,
		IsActive:      o.IsActive,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
}

func fromOfferDocument(id string, doc offerDocument) (domain.Offer, error) {
	value, err := decodeMoney("discountValue", doc.DiscountValue)
	if err != nil {
		return domain.Offer{}, err
	}
	return domain.Offer{
		ID:            id,
		Name:          doc.Name,
		DiscountType:  domain.DiscountType(doc.DiscountType),
		DiscountValue: value,
		AppliesTo:     domain.OfferScope(doc.AppliesTo),
		TargetIDs:     doc.TargetIDs,
		IsActive:      doc.IsActive,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}
