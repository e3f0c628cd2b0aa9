package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product describes a catalog entry. Products are edited only by admins.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	Sizes       []string
	Images      []string
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSize reports whether size is one of the product's listed sizes.
func (p Product) HasSize(size string) bool {
	for _, candidate := range p.Sizes {
		if candidate == size {
			return true
		}
	}
	return false
}

// DiscountType selects how an offer's value is applied.
type DiscountType string

const (
	// DiscountTypePercentage reduces the price by DiscountValue percent.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed subtracts DiscountValue currency units from the price.
	DiscountTypeFixed DiscountType = "fixed"
)

// OfferScope determines whether an offer's targets are product ids or categories.
type OfferScope string

const (
	OfferScopeCategories OfferScope = "categories"
	OfferScopeProducts   OfferScope = "products"
)

// Offer is an admin-defined discount rule targeting products or categories.
type Offer struct {
	ID            string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	AppliesTo     OfferScope
	TargetIDs     []string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Targets reports whether the offer applies to the product, either directly or via its category.
func (o Offer) Targets(product Product) bool {
	var key string
	switch o.AppliesTo {
	case OfferScopeProducts:
		key = product.ID
	case OfferScopeCategories:
		key = product.Category
	default:
		return false
	}
	if key == "" {
		return false
	}
	for _, id := range o.TargetIDs {
		if id == key {
			return true
		}
	}
	return false
}

// Reel is a short product video shown on the storefront.
type Reel struct {
	ID         string
	Title      string
	VideoURL   string
	ProductIDs []string
	CreatedAt  time.Time
}

// CartItem is a single cart line prior to checkout.
type CartItem struct {
	ProductID string
	Size      string
	Quantity  int
}

// Cart holds the session-scoped cart and wishlist.
type Cart struct {
	SessionID string
	Items     []CartItem
	Wishlist  []string
	UpdatedAt time.Time
}

// Address is the structured shipping address captured at checkout.
type Address struct {
	Name    string
	Street  string
	City    string
	State   string
	Pincode string
	Phone   string
	Country string
}

// Profile stores per-user checkout defaults.
type Profile struct {
	UserID         string
	Name           string
	Email          string
	DefaultAddress *Address
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GeoAddress is the result of reverse geocoding a coordinate pair.
type GeoAddress struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShippingOption is a courier quote returned by the shipping-rate API.
type ShippingOption struct {
	CourierID     string
	CourierName   string
	Rate          decimal.Decimal
	EstimatedDays string
}

// ShippingRateQuery describes a parcel for the shipping-rate API.
type ShippingRateQuery struct {
	DeliveryPostcode string
	CashOnDelivery   bool
	WeightKg         decimal.Decimal
	DeclaredValue    decimal.Decimal
}

// ValidPostcode reports whether code is a six digit postal code.
func ValidPostcode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
