// Package feed pushes reconciliation activity (captured payments, issued and redeemed tokens,
// manual settlements) to connected admin dashboards over WebSocket. Redis pub/sub fans events
// out across server instances.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event kinds published on the feed.
const (
	KindPaymentCaptured        = "payment_captured"
	KindTokenIssued            = "token_issued"
	KindTokenRedeemed          = "token_redeemed"
	KindRegistrationReconciled = "registration_reconciled"
	KindDonationReceived       = "donation_received"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	resubscribeMin = time.Second
	resubscribeMax = 30 * time.Second
)

// Message is the WebSocket message envelope.
type Message struct {
	Kind    string          `json:"kind"`
	EventID *uuid.UUID      `json:"event_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	At      time.Time       `json:"at"`
}

// Broker carries messages between instances.
type Broker interface {
	PublishFeed(ctx context.Context, body []byte) error
	SubscribeFeed(ctx context.Context, handler func(body []byte)) error
}

// Hub tracks connected admin clients and delivers feed messages to them.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	broker  Broker
	logger  *zap.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

// NewHub creates a hub. With a nil broker messages are delivered to local clients only.
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broker:     broker,
		logger:     logger,
		backoffMin: resubscribeMin,
		backoffMax: resubscribeMax,
	}
}

// Run subscribes to the broker and delivers remote messages until ctx is done. A failed or
// dropped subscription is retried with exponential backoff.
func (h *Hub) Run(ctx context.Context) {
	if h.broker == nil {
		<-ctx.Done()
		return
	}
	handler := func(body []byte) {
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			h.logger.Warn("invalid feed message", zap.Error(err))
			return
		}
		h.deliver(msg)
	}

	delay := h.backoffMin
	for {
		started := time.Now()
		err := h.broker.SubscribeFeed(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		// A subscription that stayed up for a while starts the backoff over.
		if time.Since(started) > h.backoffMax {
			delay = h.backoffMin
		}
		h.logger.Warn("feed subscription lost, retrying", zap.Error(err), zap.Duration("in", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > h.backoffMax {
			delay = h.backoffMax
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("admin joined feed", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("admin left feed", zap.String("client_id", c.ID))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends kind and data to every subscribed admin on every instance. When data has an
// event_id field, clients filtering on another event do not receive it. Publishing never fails
// the caller: errors are logged.
func (h *Hub) Publish(ctx context.Context, kind string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("marshal feed payload failed", zap.Error(err), zap.String("kind", kind))
		return
	}
	var scope struct {
		EventID *uuid.UUID `json:"event_id"`
	}
	_ = json.Unmarshal(raw, &scope)
	msg := Message{Kind: kind, EventID: scope.EventID, Data: raw, At: time.Now().UTC()}

	if h.broker == nil {
		h.deliver(msg)
		return
	}
	// the subscriber delivers locally too, so publishing alone avoids duplicates
	body, _ := json.Marshal(msg)
	if err := h.broker.PublishFeed(ctx, body); err != nil {
		h.logger.Warn("publish feed message failed, delivering locally", zap.Error(err), zap.String("kind", kind))
		h.deliver(msg)
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}
