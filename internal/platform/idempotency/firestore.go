package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
)

const (
	defaultCollection   = "checkout_idempotency"
	defaultCleanupLimit = 100
)

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency entries.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore keeps entries in a Firestore collection. Expired documents are removed
// by CleanupExpired, which the API runs on a ticker.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type entryDocument struct {
	Fingerprint string              `firestore:"fingerprint"`
	Done        bool                `firestore:"done"`
	Status      int                 `firestore:"status"`
	Headers     map[string][]string `firestore:"headers"`
	Body        []byte              `firestore:"body"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toDocument(e entry) entryDocument {
	return entryDocument(e)
}

func (d entryDocument) toEntry() entry {
	return entry(d)
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) (Claim, error) {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return Claim{}, err
	}

	var claim Claim
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if e := doc.toEntry(); !e.expired(now) {
				claim, err = claimExisting(e, fingerprint)
				return err
			}
		}
		claim = Claim{State: ClaimAcquired}
		return tx.Set(ref, toDocument(entry{Fingerprint: fingerprint, ExpiresAt: expiresAt.UTC()}))
	})
	if err != nil {
		return Claim{}, err
	}
	return claim, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, _, expiresAt time.Time) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrKeyReused
			}
		}
		return tx.Set(ref, toDocument(completedEntry(fingerprint, resp, expiresAt)))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bw := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	bw.End()
	return len(docs), nil
}
