// Package notify renders transactional emails and queues them for the worker. Sending never
// blocks a registration: failures are returned for the caller to log.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/queue"
)

// LogStore records one row per queued email.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// Enqueuer pushes rendered emails to the worker queue.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

var templates = template.Must(template.New("emails").Parse(`
{{define "registration"}}<p>Hi {{.StudentName}},</p>
<p>You are registered for <strong>{{.EventName}}</strong> on {{.StartsAt}}{{if .Venue}} at {{.Venue}}{{end}}.</p>
<p>Amount: {{.Amount}} {{.Currency}}{{if .Method}} ({{.Method}}){{end}}</p>
<p>Your pass code is <code>{{.ScanCode}}</code>. Show the QR code on your pass at the entrance{{if .FoodIncluded}} and the food counter{{end}}.</p>
<p><a href="{{.PassURL}}">Download your pass</a></p>{{end}}
{{define "donation"}}<p>Dear {{.DonorName}},</p>
<p>Thank you for your gift of {{.Amount}} {{.Currency}} to <strong>{{.Category}}</strong>.</p>
{{if .PaymentID}}<p>Payment reference: {{.PaymentID}}</p>{{end}}
<p>This email is your receipt.</p>{{end}}
`))

type registrationData struct {
	StudentName  string
	EventName    string
	StartsAt     string
	Venue        string
	Amount       string
	Currency     string
	Method       string
	ScanCode     string
	FoodIncluded bool
	PassURL      string
}

type donationData struct {
	DonorName string
	Category  string
	Amount    string
	Currency  string
	PaymentID string
}

// Service queues confirmation and receipt emails.
type Service struct {
	logs    LogStore
	queue   Enqueuer
	baseURL string
	logger  *zap.Logger
}

// NewService creates a notifier. baseURL prefixes links to pass PDFs.
func NewService(logs LogStore, q Enqueuer, baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logs: logs, queue: q, baseURL: baseURL, logger: logger}
}

// RegistrationConfirmed queues the pass email for a newly issued token. emailType is
// queue.EmailRegistrationConfirmed for the gateway flow or queue.EmailRegistrationReconciled for
// the manual one. Students without an email address are skipped.
func (s *Service) RegistrationConfirmed(ctx context.Context, emailType string, ev *models.Event, st *models.Student, tok *models.Token, tx *models.Transaction) error {
	if st.Email == "" {
		s.logger.Debug("student has no email, skipping pass email", zap.String("student_id", st.ID.String()))
		return nil
	}
	data := registrationData{
		StudentName:  st.FullName,
		EventName:    ev.Name,
		StartsAt:     ev.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST"),
		Venue:        ev.Venue,
		Amount:       tx.Amount.StringFixed(2),
		Currency:     tx.Currency,
		Method:       tx.Method,
		ScanCode:     tok.ScanCode,
		FoodIncluded: ev.FoodIncluded,
		PassURL:      fmt.Sprintf("%s/tokens/%s/receipt/pdf", s.baseURL, tok.ID),
	}
	body, err := render("registration", data)
	if err != nil {
		return err
	}
	return s.send(ctx, emailType, &ev.ID, &st.ID, st.Email, "Your pass for "+ev.Name, body)
}

// DonationReceipt queues the thank-you email for a confirmed donation.
func (s *Service) DonationReceipt(ctx context.Context, d *models.Donation, category string, tx *models.Transaction) error {
	if d.DonorEmail == "" {
		return nil
	}
	data := donationData{
		DonorName: d.DonorName,
		Category:  category,
		Amount:    d.Amount.StringFixed(2),
		Currency:  tx.Currency,
		PaymentID: tx.PaymentID,
	}
	body, err := render("donation", data)
	if err != nil {
		return err
	}
	return s.send(ctx, queue.EmailDonationReceipt, nil, nil, d.DonorEmail, "Thank you for your donation", body)
}

func (s *Service) send(ctx context.Context, emailType string, eventID, studentID *uuid.UUID, to, subject, body string) error {
	el := &models.EmailLog{
		EventID:        eventID,
		StudentID:      studentID,
		EmailType:      emailType,
		RecipientEmail: to,
		Subject:        subject,
		Status:         models.EmailLogStatusPending,
	}
	if err := s.logs.Create(ctx, el); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	if err := s.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailLogID:     el.ID,
		EmailType:      emailType,
		EventID:        eventID,
		StudentID:      studentID,
		RecipientEmail: to,
		Subject:        subject,
		BodyHTML:       body,
	}); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	s.logger.Info("email queued", zap.String("email_type", emailType), zap.String("email_log_id", el.ID.String()))
	return nil
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}
