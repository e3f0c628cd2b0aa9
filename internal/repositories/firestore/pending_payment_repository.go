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
	defaultPendingPaymentLimit = 50
	maxPendingPaymentLimit     = 200
)

type pendingPaymentDocument struct {
	OrderID       string        `firestore:"orderId"`
	CartSessionID string        `firestore:"cartSessionId"`
	Draft         orderDocument `firestore:"draft"`
	Amount        int64         `firestore:"amount"`
	Currency      string        `firestore:"currency"`
	Status        string        `firestore:"status"`
	PaymentID     string        `firestore:"paymentId,omitempty"`
	FailureReason string        `firestore:"failureReason,omitempty"`
	Attempts      int           `firestore:"attempts"`
	CreatedAt     time.Time     `firestore:"createdAt"`
	UpdatedAt     time.Time     `firestore:"updatedAt"`
}

// PendingPaymentRepository implements repositories.PendingPaymentRepository. Documents are
// keyed by the gateway order id.
type PendingPaymentRepository struct {
	payments *pfirestore.Collection[domain.PendingPayment]
}

var _ repositories.PendingPaymentRepository = (*PendingPaymentRepository)(nil)

func NewPendingPaymentRepository(provider *pfirestore.Provider) (*PendingPaymentRepository, error) {
	if err := requireProvider(provider, "pending payment"); err != nil {
		return nil, err
	}
	return &PendingPaymentRepository{
		payments: pfirestore.NewCollection(provider, pendingPaymentsCollection, encodeAs(toPendingPaymentDocument), decodeWith(fromPendingPaymentDocument)),
	}, nil
}

func (r *PendingPaymentRepository) Insert(ctx context.Context, payment domain.PendingPayment) error {
	return r.payments.Create(ctx, payment.GatewayOrderID, payment)
}

func (r *PendingPaymentRepository) Update(ctx context.Context, payment domain.PendingPayment) error {
	return r.payments.Set(ctx, payment.GatewayOrderID, payment)
}

func (r *PendingPaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PendingPayment, error) {
	return r.payments.Get(ctx, gatewayOrderID)
}

// ListByStatus returns the least recently updated records in status first.
func (r *PendingPaymentRepository) ListByStatus(ctx context.Context, status domain.PendingPaymentStatus, limit int) ([]domain.PendingPayment, error) {
	limit = clampLimit(limit, defaultPendingPaymentLimit, maxPendingPaymentLimit)
	return r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(status)).OrderBy("updatedAt", firestore.Asc).Limit(limit)
	})
}

func toPendingPaymentDocument(p domain.PendingPayment) pendingPaymentDocument {
	return pendingPaymentDocument{
		OrderID:       p.OrderID,
		CartSessionID: p.CartSessionID,
		Draft:         toOrderDocument(p.Draft),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		PaymentID:     p.PaymentID,
		FailureReason: p.FailureReason,
		Attempts:      p.Attempts,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func fromPendingPaymentDocument(id string, doc pendingPaymentDocument) (domain.PendingPayment, error) {
	draft, err := fromOrderDocument(doc.OrderID, doc.Draft)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	return domain.PendingPayment{
		GatewayOrderID: id,
		OrderID:        doc.OrderID,
		CartSessionID:  doc.CartSessionID,
		Draft:          draft,
		Amount:         doc.Amount,
		Currency:       doc.Currency,
		Status:         domain.PendingPaymentStatus(doc.Status),
		PaymentID:      doc.PaymentID,
		FailureReason:  doc.FailureReason,
		Attempts:       doc.Attempts,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}
