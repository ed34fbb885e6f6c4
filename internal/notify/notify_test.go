package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/queue"
)

type memLogs struct {
	mu   sync.Mutex
	rows []models.EmailLog
}

func (m *memLogs) Create(_ context.Context, el *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el.ID = uuid.New()
	m.rows = append(m.rows, *el)
	return nil
}

type memQueue struct {
	jobs []queue.EmailPayload
	err  error
}

func (m *memQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, p)
	return nil
}

func fixtures() (*models.Event, *models.Student, *models.Token, *models.Transaction) {
	ev := &models.Event{ID: uuid.New(), Name: "Reunion <2025>", StartsAt: time.Date(2025, 12, 20, 18, 0, 0, 0, time.UTC), FoodIncluded: true}
	st := &models.Student{ID: uuid.New(), FullName: "Asha Rao", Email: "asha@example.com"}
	tok := &models.Token{ID: uuid.New(), ScanCode: "ABCDEF"}
	tx := &models.Transaction{Amount: decimal.NewFromInt(500), Currency: "INR", Method: "upi"}
	return ev, st, tok, tx
}

func TestRegistrationConfirmedQueuesRenderedEmail(t *testing.T) {
	logs, q := &memLogs{}, &memQueue{}
	svc := NewService(logs, q, "https://alumni.example.org", nil)
	ev, st, tok, tx := fixtures()

	if err := svc.RegistrationConfirmed(context.Background(), queue.EmailRegistrationConfirmed, ev, st, tok, tx); err != nil {
		t.Fatalf("RegistrationConfirmed: %v", err)
	}
	if len(logs.rows) != 1 || len(q.jobs) != 1 {
		t.Fatalf("logs=%d jobs=%d", len(logs.rows), len(q.jobs))
	}
	job := q.jobs[0]
	if job.EmailLogID != logs.rows[0].ID || job.RecipientEmail != "asha@example.com" {
		t.Errorf("job = %+v", job)
	}
	for _, want := range []string{"Asha Rao", "500.00 INR", "ABCDEF", "food counter", "/tokens/" + tok.ID.String() + "/receipt/pdf", "Reunion &lt;2025&gt;"} {
		if !strings.Contains(job.BodyHTML, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestRegistrationConfirmedSkipsStudentsWithoutEmail(t *testing.T) {
	logs, q := &memLogs{}, &memQueue{}
	svc := NewService(logs, q, "", nil)
	ev, st, tok, tx := fixtures()
	st.Email = ""

	if err := svc.RegistrationConfirmed(context.Background(), queue.EmailRegistrationReconciled, ev, st, tok, tx); err != nil {
		t.Fatal(err)
	}
	if len(logs.rows) != 0 || len(q.jobs) != 0 {
		t.Error("nothing should be queued")
	}
}

func TestDonationReceiptEnqueueFailure(t *testing.T) {
	q := &memQueue{err: errors.New("redis down")}
	svc := NewService(&memLogs{}, q, "", nil)
	d := &models.Donation{DonorName: "Meera", DonorEmail: "meera@example.com", Amount: decimal.NewFromInt(2500)}

	err := svc.DonationReceipt(context.Background(), d, "Scholarships", &models.Transaction{Currency: "INR", PaymentID: "pay_1"})
	if err == nil || !strings.Contains(err.Error(), "enqueue email") {
		t.Fatalf("err = %v", err)
	}
}
