package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/repositories"
)

const defaultOrderPollInterval = 5 * time.Second

// OrderLister is the read side a polling feed needs.
type OrderLister interface {
	List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
}

// PollingOrderFeed emulates a realtime feed by re-listing orders on an interval and emitting the
// result set whenever it differs from the previous one.
type PollingOrderFeed struct {
	lister   OrderLister
	interval time.Duration
	logger   func(context.Context, string, map[string]any)
}

// NewPollingOrderFeed constructs a polling feed. A non-positive interval uses the default.
func NewPollingOrderFeed(lister OrderLister, interval time.Duration, logger func(context.Context, string, map[string]any)) *PollingOrderFeed {
	if interval <= 0 {
		interval = defaultOrderPollInterval
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PollingOrderFeed{lister: lister, interval: interval, logger: logger}
}

// Watch polls until ctx is done. List failures are logged and retried on the next tick.
func (f *PollingOrderFeed) Watch(ctx context.Context, filter repositories.OrderListFilter, onUpdate func([]domain.Order)) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var (
		last  string
		first = true
	)
	for {
		orders, err := f.lister.List(ctx, filter)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			f.logger(ctx, "order.feed.poll.failed", map[string]any{"error": err.Error()})
		default:
			fingerprint := ordersFingerprint(orders)
			if first || fingerprint != last {
				first = false
				last = fingerprint
				onUpdate(orders)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func ordersFingerprint(orders []domain.Order) string {
	var b strings.Builder
	for _, order := range orders {
		b.WriteString(order.ID)
		b.WriteByte('|')
		b.WriteString(string(order.Status))
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(order.UpdatedAt.UnixNano(), 10))
		b.WriteByte(';')
	}
	return b.String()
}

// orderSubscription adapts an OrderFeed to a channel. Only the newest snapshot is buffered so a
// slow consumer never blocks the feed.
type orderSubscription struct {
	updates chan []domain.Order
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func newOrderSubscription(ctx context.Context, feed repositories.OrderFeed, filter repositories.OrderListFilter, logger func(context.Context, string, map[string]any)) *orderSubscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &orderSubscription{
		updates: make(chan []domain.Order, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		err := feed.Watch(subCtx, filter, sub.deliver)
		if err != nil && subCtx.Err() == nil {
			logger(subCtx, "order.feed.watch.failed", map[string]any{"error": err.Error()})
		}
	}()
	return sub
}

func (s *orderSubscription) deliver(orders []domain.Order) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- orders:
	default:
	}
}

func (s *orderSubscription) Updates() <-chan []domain.Order {
	return s.updates
}

// Close stops the underlying watch and waits for it to exit. It is safe to call more than once.
func (s *orderSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
