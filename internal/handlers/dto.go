package handlers

import (
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/services"
)

// Money is serialised as a two-decimal string.

type productResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Price           string   `json:"price"`
	DiscountedPrice string   `json:"discountedPrice"`
	OfferID         string   `json:"offerId,omitempty"`
	Category        string   `json:"category"`
	Sizes           []string `json:"sizes"`
	Images          []string `json:"images"`
	Rating          float64  `json:"rating"`
	ReviewCount     int      `json:"reviewCount"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

func toProductResponse(p services.PricedProduct) productResponse {
	resp := productResponse{
		ID:              p.Product.ID,
		Name:            p.Product.Name,
		Price:           formatMoney(p.Product.Price),
		DiscountedPrice: formatMoney(p.DiscountedPrice),
		OfferID:         p.OfferID,
		Category:        p.Product.Category,
		Sizes:           nonNilStrings(p.Product.Sizes),
		Images:          nonNilStrings(p.Product.Images),
		Rating:          p.Product.Rating,
		ReviewCount:     p.Product.ReviewCount,
	}
	if !p.Product.UpdatedAt.IsZero() {
		resp.UpdatedAt = formatTime(p.Product.UpdatedAt)
	}
	return resp
}

type offerResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DiscountType  string   `json:"discountType"`
	DiscountValue string   `json:"discountValue"`
	AppliesTo     string   `json:"appliesTo"`
	TargetIDs     []string `json:"targetIds"`
	IsActive      bool     `json:"isActive"`
	CreatedAt     string   `json:"createdAt"`
}

func toOfferResponse(o domain.Offer) offerResponse {
	return offerResponse{
		ID:            o.ID,
		Name:          o.Name,
		DiscountType:  string(o.DiscountType),
		DiscountValue: o.DiscountValue.String(),
		AppliesTo:     string(o.AppliesTo),
		TargetIDs:     nonNilStrings(o.TargetIDs),
		IsActive:      o.IsActive,
		CreatedAt:     formatTime(o.CreatedAt),
	}
}

type reelResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	VideoURL   string   `json:"videoUrl"`
	ProductIDs []string `json:"productIds"`
	CreatedAt  string   `json:"createdAt"`
}

func toReelResponse(r domain.Reel) reelResponse {
	return reelResponse{ID: r.ID, Title: r.Title, VideoURL: r.VideoURL, ProductIDs: nonNilStrings(r.ProductIDs), CreatedAt: formatTime(r.CreatedAt)}
}

type cartItemPayload struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	Items     []cartItemPayload `json:"items"`
	Wishlist  []string          `json:"wishlist"`
	ItemCount int               `json:"itemCount"`
}

func toCartResponse(c domain.Cart) cartResponse {
	resp := cartResponse{Items: make([]cartItemPayload, 0, len(c.Items)), Wishlist: nonNilStrings(c.Wishlist)}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, cartItemPayload{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
		resp.ItemCount += item.Quantity
	}
	return resp
}

type shippingOptionResponse struct {
	CourierID     string `json:"courierId"`
	CourierName   string `json:"courierName"`
	Rate          string `json:"rate"`
	EstimatedDays string `json:"estimatedDays"`
}

func toShippingOptions(options []domain.ShippingOption) []shippingOptionResponse {
	out := make([]shippingOptionResponse, 0, len(options))
	for _, o := range options {
		out = append(out, shippingOptionResponse{CourierID: o.CourierID, CourierName: o.CourierName, Rate: formatMoney(o.Rate), EstimatedDays: o.EstimatedDays})
	}
	return out
}

type pricedLineResponse struct {
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	Size            string `json:"size,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unitPrice"`
	DiscountedPrice string `json:"discountedPrice"`
	OfferID         string `json:"offerId,omitempty"`
	LineTotal       string `json:"lineTotal"`
}

type pricingResponse struct {
	Lines              []pricedLineResponse     `json:"lines"`
	Subtotal           string                   `json:"subtotal"`
	Discount           string                   `json:"discount"`
	DiscountedSubtotal string                   `json:"discountedSubtotal"`
	WeightKg           string                   `json:"weightKg"`
	ShippingOptions    []shippingOptionResponse `json:"shippingOptions"`
	SelectedShipping   *shippingOptionResponse  `json:"selectedShipping,omitempty"`
	ShippingRate       string                   `json:"shippingRate"`
	Total              string                   `json:"total"`
	Ready              bool                     `json:"ready"`
}

func toPricingResponse(p services.CartPricing) pricingResponse {
	resp := pricingResponse{
		Lines:              make([]pricedLineResponse, 0, len(p.Lines)),
		Subtotal:           formatMoney(p.Subtotal),
		Discount:           formatMoney(p.Discount),
		DiscountedSubtotal: formatMoney(p.DiscountedSubtotal),
		WeightKg:           p.WeightKg.String(),
		ShippingOptions:    toShippingOptions(p.ShippingOptions),
		ShippingRate:       formatMoney(p.ShippingRate),
		Total:              formatMoney(p.Total),
		Ready:              p.Ready,
	}
	for _, line := range p.Lines {
		resp.Lines = append(resp.Lines, pricedLineResponse{
			ProductID:       line.Item.ProductID,
			Name:            line.Product.Name,
			Size:            line.Item.Size,
			Quantity:        line.Item.Quantity,
			UnitPrice:       formatMoney(line.UnitPrice),
			DiscountedPrice: formatMoney(line.DiscountedPrice),
			OfferID:         line.OfferID,
			LineTotal:       formatMoney(line.LineTotal),
		})
	}
	if p.SelectedShipping != nil {
		selected := toShippingOptions([]domain.ShippingOption{*p.SelectedShipping})[0]
		resp.SelectedShipping = &selected
	}
	return resp
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	CustomerName    string              `json:"customerName"`
	CustomerEmail   string              `json:"customerEmail"`
	ShippingName    string              `json:"shippingName"`
	ShippingAddress string              `json:"shippingAddress"`
	ShippingPhone   string              `json:"shippingPhone"`
	PaymentMethod   string              `json:"paymentMethod"`
	PaymentRef      string              `json:"paymentRef,omitempty"`
	Status          string              `json:"status"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        string              `json:"subtotal"`
	Discount        string              `json:"discount"`
	ShippingRate    string              `json:"shippingRate"`
	Courier         string              `json:"courier,omitempty"`
	Total           string              `json:"total"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
	DeliveryDate    *string             `json:"deliveryDate"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.Customer.UserID,
		CustomerName:    o.Customer.Name,
		CustomerEmail:   o.Customer.Email,
		ShippingName:    o.ShippingAddress.Name,
		ShippingAddress: o.ShippingAddress.Address,
		ShippingPhone:   o.ShippingAddress.Phone,
		PaymentMethod:   string(o.PaymentMethod),
		PaymentRef:      o.PaymentRef,
		Status:          string(o.Status),
		Items:           make([]orderItemResponse, 0, len(o.Items)),
		Subtotal:        formatMoney(o.Subtotal),
		Discount:        formatMoney(o.Discount),
		ShippingRate:    formatMoney(o.ShippingRate),
		Courier:         o.Courier,
		Total:           formatMoney(o.Total),
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{ProductID: item.ProductID, Name: item.Name, Size: item.Size, Quantity: item.Quantity, UnitPrice: formatMoney(item.UnitPrice)})
	}
	if o.DeliveryDate != nil {
		d := formatTime(*o.DeliveryDate)
		resp.DeliveryDate = &d
	}
	return resp
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type addressPayload struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
	Country string `json:"country,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{Name: a.Name, Street: a.Street, City: a.City, State: a.State, Pincode: a.Pincode, Phone: a.Phone, Country: a.Country}
}

func toAddressPayload(a domain.Address) addressPayload {
	return addressPayload{Name: a.Name, Street: a.Street, City: a.City, State: a.State, Pincode: a.Pincode, Phone: a.Phone, Country: a.Country}
}

type profileResponse struct {
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	DefaultAddress *addressPayload `json:"defaultAddress"`
}

func toProfileResponse(p domain.Profile) profileResponse {
	resp := profileResponse{UserID: p.UserID, Name: p.Name, Email: p.Email}
	if p.DefaultAddress != nil {
		addr := toAddressPayload(*p.DefaultAddress)
		resp.DefaultAddress = &addr
	}
	return resp
}

type notificationResponse struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"createdAt"`
}

func toNotificationResponse(n domain.Notification) notificationResponse {
	return notificationResponse{ID: n.ID, OrderID: n.OrderID, Title: n.Title, Description: n.Description, Icon: n.Icon, Read: n.Read, CreatedAt: formatTime(n.CreatedAt)}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
