package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Encoder serialises an entity into a Firestore-compatible document.
type Encoder[T any] func(value T) (any, error)

// Decoder hydrates an entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises a collection query before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection is a typed view of one Firestore collection. Writes join the
// transaction carried on the context when UnitOfWork.RunInTx started one.
type Collection[T any] struct {
	provider *Provider
	name     string
	encode   Encoder[T]
	decode   Decoder[T]
}

// NewCollection binds a collection. encode and decode are required.
func NewCollection[T any](provider *Provider, name string, encode Encoder[T], decode Decoder[T]) *Collection[T] {
	return &Collection[T]{
		provider: provider,
		name:     strings.TrimSpace(name),
		encode:   encode,
		decode:   decode,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Get loads and decodes the document with id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return c.decodeSnapshot(snap)
}

// GetAll loads the documents for ids in one round trip, skipping missing ones.
func (c *Collection[T]) GetAll(ctx context.Context, ids []string) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			refs = append(refs, client.Collection(c.name).Doc(id))
		}
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(c.op("get_all"), err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		entity, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out[snap.Ref.ID] = entity
	}
	return out, nil
}

// Create writes a new document, failing with a conflict when id is taken. Inside a
// transaction the existence check is a transactional read, so call it before other writes.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, data, err := c.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		snap, err := tx.Get(ref)
		if err == nil && snap.Exists() {
			return Conflict(c.op("create"), id)
		}
		if err != nil && status.Code(err) != codes.NotFound {
			return WrapError(c.op("create"), err)
		}
		return WrapError(c.op("create"), tx.Create(ref, data))
	}
	_, err = ref.Create(ctx, data)
	return WrapError(c.op("create"), err)
}

// Set overwrites the document.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, data, err := c.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(c.op("set"), tx.Set(ref, data))
	}
	_, err = ref.Set(ctx, data)
	return WrapError(c.op("set"), err)
}

// Replace overwrites an existing document, failing with not found when it is absent.
func (c *Collection[T]) Replace(ctx context.Context, id string, value T) error {
	ref, data, err := c.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		if _, err := tx.Get(ref); err != nil {
			return WrapError(c.op("replace"), err)
		}
		return WrapError(c.op("replace"), tx.Set(ref, data))
	}
	if _, err := ref.Get(ctx); err != nil {
		return WrapError(c.op("replace"), err)
	}
	_, err = ref.Set(ctx, data)
	return WrapError(c.op("replace"), err)
}

// Update applies field updates to an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(c.op("update"), tx.Update(ref, updates))
	}
	_, err = ref.Update(ctx, updates)
	return WrapError(c.op("update"), err)
}

// Delete removes an existing document, failing with not found when it is absent.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(c.op("delete"), tx.Delete(ref, firestore.Exists))
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return WrapError(c.op("delete"), err)
}

// Query runs a query over the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]T, error) {
	query, err := c.query(ctx, build)
	if err != nil {
		return nil, err
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if isIteratorDone(err) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		entity, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
}

// Watch streams the query's full result set every time it changes until ctx ends.
func (c *Collection[T]) Watch(ctx context.Context, build QueryBuilder, onUpdate func([]T)) error {
	query, err := c.query(ctx, build)
	if err != nil {
		return err
	}
	iter := query.Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return WrapError(c.op("watch"), err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return WrapError(c.op("watch"), err)
		}
		entities := make([]T, 0, len(docs))
		for _, doc := range docs {
			entity, err := c.decodeSnapshot(doc)
			if err != nil {
				return err
			}
			entities = append(entities, entity)
		}
		onUpdate(entities)
	}
}

// Doc returns the reference for id.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("firestore: document id is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

func (c *Collection[T]) query(ctx context.Context, build QueryBuilder) (firestore.Query, error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := client.Collection(c.name).Query
	if build != nil {
		query = build(query)
	}
	return query, nil
}

func (c *Collection[T]) prepare(ctx context.Context, id string, value T) (*firestore.DocumentRef, any, error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := c.encode(value)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore: encode %s/%s: %w", c.name, id, err)
	}
	return ref, data, nil
}

func (c *Collection[T]) decodeSnapshot(snap *firestore.DocumentSnapshot) (T, error) {
	entity, err := c.decode(snap)
	if err != nil {
		return entity, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return entity, nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
