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
	defaultOrderLimit = 100
	maxOrderLimit     = 500
)

type orderDocument struct {
	Customer        orderCustomerDocument `firestore:"customer"`
	UserID          string                `firestore:"userId"`
	ShippingAddress orderAddressDocument  `firestore:"shippingAddress"`
	PaymentMethod   string                `firestore:"paymentMethod"`
	PaymentRef      string                `firestore:"paymentRef,omitempty"`
	Status          string                `firestore:"status"`
	Items           []orderItemDocument   `firestore:"items"`
	Subtotal        string                `firestore:"subtotal"`
	Discount        string                `firestore:"discount"`
	ShippingRate    string                `firestore:"shippingRate"`
	Courier         string                `firestore:"courier,omitempty"`
	Total           string                `firestore:"total"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
	DeliveryDate    *time.Time            `firestore:"deliveryDate"`
}

type orderCustomerDocument struct {
	UserID string `firestore:"userId"`
	Name   string `firestore:"name"`
	Email  string `firestore:"email"`
}

type orderAddressDocument struct {
	Name    string `firestore:"name"`
	Address string `firestore:"address"`
	Phone   string `firestore:"phone"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Size      string `firestore:"size,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice string `firestore:"unitPrice"`
}

// OrderRepository implements repositories.OrderRepository and repositories.OrderFeed. The
// feed is backed by Firestore query snapshots.
type OrderRepository struct {
	orders *pfirestore.Collection[domain.Order]
}

var (
	_ repositories.OrderRepository = (*OrderRepository)(nil)
	_ repositories.OrderFeed       = (*OrderRepository)(nil)
)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if err := requireProvider(provider, "order"); err != nil {
		return nil, err
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection(provider, ordersCollection, encodeAs(toOrderDocument), decodeWith(fromOrderDocument)),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.orders.Create(ctx, order.ID, order)
}

// UpdateStatus writes only the status fields; items and totals are immutable.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, deliveryDate *time.Time, updatedAt time.Time) error {
	var delivery any
	if deliveryDate != nil {
		delivery = deliveryDate.UTC()
	}
	return r.orders.Update(ctx, orderID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "deliveryDate", Value: delivery},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.orders.Get(ctx, orderID)
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	return r.orders.Query(ctx, orderQuery(filter))
}

// Watch streams the filtered order set on every change until ctx is done.
func (r *OrderRepository) Watch(ctx context.Context, filter repositories.OrderListFilter, onUpdate func([]domain.Order)) error {
	return r.orders.Watch(ctx, orderQuery(filter), onUpdate)
}

func orderQuery(filter repositories.OrderListFilter) pfirestore.QueryBuilder {
	limit := clampLimit(filter.Limit, defaultOrderLimit, maxOrderLimit)
	return func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	}
}

func toOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: encodeMoney(item.UnitPrice),
		})
	}
	var delivery *time.Time
	if o.DeliveryDate != nil {
		d := o.DeliveryDate.UTC()
		delivery = &d
	}
	return orderDocument{
		Customer:        orderCustomerDocument{UserID: o.Customer.UserID, Name: o.Customer.Name, Email: o.Customer.Email},
		UserID:          o.Customer.UserID,
		ShippingAddress: orderAddressDocument{Name: o.ShippingAddress.Name, Address: o.ShippingAddress.Address, Phone: o.ShippingAddress.Phone},
		PaymentMethod:   string(o.PaymentMethod),
		PaymentRef:      o.PaymentRef,
		Status:          string(o.Status),
		Items:           items,
		Subtotal:        encodeMoney(o.Subtotal),
		Discount:        encodeMoney(o.Discount),
		ShippingRate:    encodeMoney(o.ShippingRate),
		Courier:         o.Courier,
		Total:           encodeMoney(o.Total),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
		DeliveryDate:    delivery,
	}
}

func fromOrderDocument(id string, doc orderDocument) (domain.Order, error) {
	order := domain.Order{
		ID:              id,
		Customer:        domain.Customer{UserID: doc.Customer.UserID, Name: doc.Customer.Name, Email: doc.Customer.Email},
		ShippingAddress: domain.ShippingAddress{Name: doc.ShippingAddress.Name, Address: doc.ShippingAddress.Address, Phone: doc.ShippingAddress.Phone},
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentRef:      doc.PaymentRef,
		Status:          domain.OrderStatus(doc.Status),
		Courier:         doc.Courier,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		DeliveryDate:    doc.DeliveryDate,
	}
	if order.Customer.UserID == "" {
		order.Customer.UserID = doc.UserID
	}

	var err error
	if order.Subtotal, err = decodeMoney("subtotal", doc.Subtotal); err != nil {
		return domain.Order{}, err
	}
	if order.Discount, err = decodeMoney("discount", doc.Discount); err != nil {
		return domain.Order{}, err
	}
	if order.ShippingRate, err = decodeMoney("shippingRate", doc.ShippingRate); err != nil {
		return domain.Order{}, err
	}
	if order.Total, err = decodeMoney("total", doc.Total); err != nil {
		return domain.Order{}, err
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		price, err := decodeMoney("items.unitPrice", item.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}
	return order, nil
}
