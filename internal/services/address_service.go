package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/geocoding"
	"github.com/threadcart/storefront/internal/repositories"
)

var (
	// ErrAddressInvalid signals a missing or malformed address field.
	ErrAddressInvalid = errors.New("address: invalid address")
	// ErrAddressNotFound is returned when the customer has no saved default address.
	ErrAddressNotFound = errors.New("address: default address not found")
	// ErrProfileNotFound is returned for unknown customers.
	ErrProfileNotFound = errors.New("address: profile not found")
	// ErrGeocodingInvalidInput signals coordinates outside the valid range.
	ErrGeocodingInvalidInput = errors.New("address: invalid coordinates")
	// ErrGeocodingNoResults is returned when the coordinates resolve to no address.
	ErrGeocodingNoResults = errors.New("address: no address for coordinates")
	// ErrGeocodingUnavailable wraps geocoding API failures.
	ErrGeocodingUnavailable = errors.New("address: geocoding unavailable")
)

// Geocoder resolves coordinates to a postal address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeoAddress, error)
}

// AddressServiceDeps bundles collaborators required by the address service.
type AddressServiceDeps struct {
	Profiles repositories.ProfileRepository
	Geocoder Geocoder
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	profiles repositories.ProfileRepository
	geocoder Geocoder
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewAddressService constructs the address service. The geocoder is optional.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Profiles == nil {
		return nil, errors.New("address service: profile repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{
		profiles: deps.Profiles,
		geocoder: deps.Geocoder,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *addressService) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, fmt.Errorf("%w: user id is required", ErrAddressInvalid)
	}
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return domain.Profile{}, s.mapRepositoryError(err)
	}
	return profile, nil
}

func (s *addressService) SaveDefaultAddress(ctx context.Context, userID string, address domain.Address) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, fmt.Errorf("%w: user id is required", ErrAddressInvalid)
	}
	address = NormalizeAddress(address)
	if err := ValidateAddress(address); err != nil {
		return domain.Profile{}, err
	}

	now := s.clock()
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return domain.Profile{}, s.mapRepositoryError(err)
		}
		profile = domain.Profile{UserID: userID, Name: address.Name, CreatedAt: now}
	}
	profile.DefaultAddress = &address
	profile.UpdatedAt = now
	if err := s.profiles.Save(ctx, profile); err != nil {
		return domain.Profile{}, s.mapRepositoryError(err)
	}
	return profile, nil
}

func (s *addressService) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeoAddress, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.GeoAddress{}, fmt.Errorf("%w: (%f, %f)", ErrGeocodingInvalidInput, lat, lng)
	}
	if s.geocoder == nil {
		return domain.GeoAddress{}, fmt.Errorf("%w: geocoder not configured", ErrGeocodingUnavailable)
	}
	address, err := s.geocoder.ReverseGeocode(ctx, lat, lng)
	switch {
	case err == nil:
		return address, nil
	case errors.Is(err, geocoding.ErrNoResults):
		return domain.GeoAddress{}, fmt.Errorf("%w: %v", ErrGeocodingNoResults, err)
	case errors.Is(err, geocoding.ErrInvalidCoordinates):
		return domain.GeoAddress{}, fmt.Errorf("%w: %v", ErrGeocodingInvalidInput, err)
	default:
		s.logger(ctx, "address.geocode.failed", map[string]any{"error": err.Error()})
		return domain.GeoAddress{}, fmt.Errorf("%w: %v", ErrGeocodingUnavailable, err)
	}
}

func (s *addressService) ResolveShippingAddress(ctx context.Context, userID string, useDefault bool, manual domain.Address) (domain.Address, error) {
	if !useDefault {
		address := NormalizeAddress(manual)
		if err := ValidateAddress(address); err != nil {
			return domain.Address{}, err
		}
		return address, nil
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return domain.Address{}, fmt.Errorf("%w: no profile for %s", ErrAddressNotFound, userID)
		}
		return domain.Address{}, err
	}
	if profile.DefaultAddress == nil {
		return domain.Address{}, ErrAddressNotFound
	}
	address := NormalizeAddress(*profile.DefaultAddress)
	if err := ValidateAddress(address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

func (s *addressService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProfileNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("address: repository unavailable: %w", err)
		}
	}
	return err
}

// NormalizeAddress trims every field of address.
func NormalizeAddress(address domain.Address) domain.Address {
	return domain.Address{
		Name:    strings.TrimSpace(address.Name),
		Street:  strings.TrimSpace(address.Street),
		City:    strings.TrimSpace(address.City),
		State:   strings.TrimSpace(address.State),
		Pincode: strings.TrimSpace(address.Pincode),
		Phone:   strings.TrimSpace(address.Phone),
		Country: strings.TrimSpace(address.Country),
	}
}

// ValidateAddress requires every checkout field and a six digit pincode.
func ValidateAddress(address domain.Address) error {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", address.Name},
		{"street", address.Street},
		{"city", address.City},
		{"state", address.State},
		{"pincode", address.Pincode},
		{"phone", address.Phone},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrAddressInvalid, strings.Join(missing, ", "))
	}
	if !domain.ValidPostcode(address.Pincode) {
		return fmt.Errorf("%w: pincode must be 6 digits", ErrAddressInvalid)
	}
	return nil
}

// FormatAddress flattens a structured address into the single line stored on orders.
func FormatAddress(address domain.Address) string {
	parts := make([]string, 0, 5)
	for _, part := range []string{address.Street, address.City, address.State} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	line := strings.Join(parts, ", ")
	if pin := strings.TrimSpace(address.Pincode); pin != "" {
		line += " - " + pin
	}
	if country := strings.TrimSpace(address.Country); country != "" {
		line += ", " + country
	}
	return line
}
