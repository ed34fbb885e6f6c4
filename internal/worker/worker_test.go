package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alumni-connect/backend/internal/mailer"
	"github.com/alumni-connect/backend/pkg/queue"
)

type stubSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, m mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubLogs struct {
	mu     sync.Mutex
	sent   map[uuid.UUID]bool
	failed map[uuid.UUID]string
}

func newStubLogs() *stubLogs {
	return &stubLogs{sent: map[uuid.UUID]bool{}, failed: map[uuid.UUID]string{}}
}

func (l *stubLogs) MarkSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[id] = true
	return nil
}

func (l *stubLogs) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed[id] = msg
	return nil
}

func (l *stubLogs) isFailed(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failed[id]
	return ok
}

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewQueue(client, nil)
}

func TestProcessSendsAndMarksLog(t *testing.T) {
	sender, logs := &stubSender{}, newStubLogs()
	p := NewEmailProcessor(sender, logs, nil, nil)
	logID := uuid.New()
	payload, _ := json.Marshal(queue.EmailPayload{EmailLogID: logID, RecipientEmail: "asha@example.com", Subject: "Pass", BodyHTML: "<p>x</p>"})

	if err := p.Process(context.Background(), &queue.Job{ID: "j1", Type: queue.JobTypeEmail, Payload: payload}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sender.count() != 1 || !logs.sent[logID] {
		t.Errorf("sent=%d logged=%v", sender.count(), logs.sent[logID])
	}
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewEmailProcessor(&stubSender{}, newStubLogs(), nil, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "sms"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunDeadLettersAndMarksFailed(t *testing.T) {
	q := newQueue(t)
	sender := &stubSender{err: errors.New("smtp 550")}
	logs := newStubLogs()
	p := NewEmailProcessor(sender, logs, q, nil)
	p.backoff = time.Millisecond

	logID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.EnqueueEmail(ctx, queue.EmailPayload{EmailLogID: logID, RecipientEmail: "x@example.com"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(4 * time.Second)
	for !logs.isFailed(logID) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if !logs.isFailed(logID) {
		t.Fatal("email log was not marked failed after retries")
	}
	_, dlq, err := q.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dlq != 1 {
		t.Errorf("dlq = %d, want 1", dlq)
	}
}
