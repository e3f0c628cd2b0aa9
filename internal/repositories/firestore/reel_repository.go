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
	defaultReelLimit = 20
	maxReelLimit     = 100
)

type reelDocument struct {
	Title      string    `firestore:"title"`
	VideoURL   string    `firestore:"videoUrl"`
	ProductIDs []string  `firestore:"productIds"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// ReelRepository implements repositories.ReelRepository.
type ReelRepository struct {
	reels *pfirestore.Collection[domain.Reel]
}

var _ repositories.ReelRepository = (*ReelRepository)(nil)

func NewReelRepository(provider *pfirestore.Provider) (*ReelRepository, error) {
	if err := requireProvider(provider, "reel"); err != nil {
		return nil, err
	}
	return &ReelRepository{
		reels: pfirestore.NewCollection(provider, reelsCollection,
			encodeAs(func(r domain.Reel) reelDocument {
				return reelDocument{Title: r.Title, VideoURL: r.VideoURL, ProductIDs: r.ProductIDs, CreatedAt: r.CreatedAt.UTC()}
			}),
			decodeWith(func(id string, doc reelDocument) (domain.Reel, error) {
				return domain.Reel{ID: id, Title: doc.Title, VideoURL: doc.VideoURL, ProductIDs: doc.ProductIDs, CreatedAt: doc.CreatedAt}, nil
			}),
		),
	}, nil
}

func (r *ReelRepository) Insert(ctx context.Context, reel domain.Reel) error {
	return r.reels.Create(ctx, reel.ID, reel)
}

func (r *ReelRepository) Delete(ctx context.Context, reelID string) error {
	return r.reels.Delete(ctx, reelID)
}

// List returns the newest reels first.
func (r *ReelRepository) List(ctx context.Context, limit int) ([]domain.Reel, error) {
	limit = clampLimit(limit, defaultReelLimit, maxReelLimit)
	return r.reels.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
}
