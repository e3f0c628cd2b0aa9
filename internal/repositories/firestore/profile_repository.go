package firestore

import (
	"context"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
	"github.com/threadcart/storefront/internal/repositories"
)

type profileDocument struct {
	Name           string           `firestore:"name"`
	Email          string           `firestore:"email"`
	DefaultAddress *addressDocument `firestore:"defaultAddress"`
	CreatedAt      time.Time        `firestore:"createdAt"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
	Phone   string `firestore:"phone"`
	Country string `firestore:"country,omitempty"`
}

// ProfileRepository implements repositories.ProfileRepository keyed by Firebase uid.
type ProfileRepository struct {
	profiles *pfirestore.Collection[domain.Profile]
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

func NewProfileRepository(provider *pfirestore.Provider) (*ProfileRepository, error) {
	if err := requireProvider(provider, "profile"); err != nil {
		return nil, err
	}
	return &ProfileRepository{
		profiles: pfirestore.NewCollection(provider, profilesCollection, encodeAs(toProfileDocument), decodeWith(fromProfileDocument)),
	}, nil
}

func (r *ProfileRepository) FindByID(ctx context.Context, userID string) (domain.Profile, error) {
	return r.profiles.Get(ctx, userID)
}

func (r *ProfileRepository) Save(ctx context.Context, profile domain.Profile) error {
	return r.profiles.Set(ctx, profile.UserID, profile)
}

func toProfileDocument(p domain.Profile) profileDocument {
	doc := profileDocument{
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	if a := p.DefaultAddress; a != nil {
		doc.DefaultAddress = &addressDocument{
			Name:    a.Name,
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Pincode: a.Pincode,
			Phone:   a.Phone,
			Country: a.Country,
		}
	}
	return doc
}

func fromProfileDocument(id string, doc profileDocument) (domain.Profile, error) {
	profile := domain.Profile{
		UserID:    id,
		Name:      doc.Name,
		Email:     doc.Email,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if a := doc.DefaultAddress; a != nil {
		profile.DefaultAddress = &domain.Address{
			Name:    a.Name,
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Pincode: a.Pincode,
			Phone:   a.Phone,
			Country: a.Country,
		}
	}
	return profile, nil
}
