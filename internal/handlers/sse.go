package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

const (
	eventStreamContentType = "text/event-stream"
	sseHeartbeatInterval   = 25 * time.Second
)

// isEventStream reports whether the client asked for server-sent events.
func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), eventStreamContentType)
}

// streamOrders relays subscription snapshots as "orders" events until the client disconnects.
// The subscription is always closed before returning.
func streamOrders(w http.ResponseWriter, r *http.Request, sub services.OrderSubscription) {
	defer sub.Close()
	ctx := r.Context()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", eventStreamContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case orders, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]any{"items": toOrderResponses(orders)})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: orders\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// subscribeAndStream writes a JSON error when the subscription cannot be opened.
func subscribeAndStream(w http.ResponseWriter, r *http.Request, orders services.OrderService, filter services.OrderListFilter) {
	if orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	sub, err := orders.SubscribeOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	streamOrders(w, r, sub)
}
