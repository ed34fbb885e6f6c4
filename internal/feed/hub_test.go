package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testClient(h *Hub, eventID *uuid.UUID) *Client {
	c := &Client{ID: uuid.NewString(), UserID: uuid.New(), EventID: eventID, hub: h, send: make(chan Message, 8)}
	h.Register(c)
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg, true
	case <-time.After(2 * time.Second):
		return Message{}, false
	}
}

func TestPublishFiltersByEvent(t *testing.T) {
	h := NewHub(nil, nil)
	eventA, eventB := uuid.New(), uuid.New()
	all := testClient(h, nil)
	onlyA := testClient(h, &eventA)
	onlyB := testClient(h, &eventB)

	h.Publish(context.Background(), KindTokenIssued, gin.H{"event_id": eventA, "token_id": uuid.New()})

	if msg, ok := receive(t, all); !ok || msg.Kind != KindTokenIssued || msg.EventID == nil || *msg.EventID != eventA {
		t.Errorf("unfiltered client got %+v ok=%v", msg, ok)
	}
	if _, ok := receive(t, onlyA); !ok {
		t.Error("event A client missed its message")
	}
	select {
	case msg := <-onlyB.send:
		t.Errorf("event B client received %+v", msg)
	default:
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub(nil, nil)
	c := testClient(h, nil)
	if h.Count() != 1 {
		t.Fatalf("count = %d", h.Count())
	}
	h.Unregister(c)
	h.Unregister(c)
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
	if h.Count() != 0 {
		t.Errorf("count = %d", h.Count())
	}
}

func TestRedisBrokerFansOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	broker := NewRedisBroker(rdb, nil)
	receiver := NewHub(broker, nil)
	sender := NewHub(broker, nil)
	c := testClient(receiver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		sender.Publish(ctx, KindRegistrationReconciled, map[string]string{"method": "cash"})
		select {
		case msg := <-c.send:
			if msg.Kind != KindRegistrationReconciled {
				t.Fatalf("kind = %q", msg.Kind)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("message never crossed the broker")
}

// flakyBroker refuses the first `failures` subscriptions, then delivers whatever is queued.
type flakyBroker struct {
	mu       sync.Mutex
	failures int
	attempts int
	queued   [][]byte
}

func (b *flakyBroker) PublishFeed(context.Context, []byte) error { return nil }

func (b *flakyBroker) SubscribeFeed(ctx context.Context, handler func(body []byte)) error {
	b.mu.Lock()
	b.attempts++
	if b.attempts <= b.failures {
		b.mu.Unlock()
		return errors.New("dial tcp: connection refused")
	}
	queued := b.queued
	b.mu.Unlock()
	for _, body := range queued {
		handler(body)
	}
	<-ctx.Done()
	return nil
}

func TestRunResubscribesAfterFailure(t *testing.T) {
	broker := &flakyBroker{
		failures: 2,
		queued:   [][]byte{[]byte(`{"kind":"token_redeemed","at":"2025-12-20T18:30:00Z"}`)},
	}
	h := NewHub(broker, nil)
	h.backoffMin = time.Millisecond
	h.backoffMax = 5 * time.Millisecond
	c := testClient(h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	msg, ok := receive(t, c)
	if !ok || msg.Kind != KindTokenRedeemed {
		t.Fatalf("got %+v ok=%v, want token_redeemed after resubscribe", msg, ok)
	}
	broker.mu.Lock()
	attempts := broker.attempts
	broker.mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
