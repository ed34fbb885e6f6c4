// Package mailer delivers rendered emails, either through an HTTP email API (Resend-compatible)
// or plain SMTP. The worker picks whichever is configured.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned by New when neither an API key nor an SMTP host is set.
var ErrNotConfigured = errors.New("mailer: no email transport configured")

// Message is one outgoing email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the transport.
type Config struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	APIKey      string
	APIURL      string
}

func (c Config) from() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return mime.QEncoding.Encode("utf-8", c.FromName) + " <" + c.FromAddress + ">"
}

// New returns the API sender when an API key is configured, the SMTP sender when a host is
// configured, or ErrNotConfigured.
func New(cfg Config, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case cfg.APIKey != "":
		logger.Info("mailer using HTTP API", zap.String("url", cfg.APIURL))
		return NewAPISender(cfg, &http.Client{Timeout: 15 * time.Second}), nil
	case cfg.SMTPHost != "":
		logger.Info("mailer using SMTP", zap.String("host", cfg.SMTPHost), zap.Int("port", cfg.SMTPPort))
		return NewSMTPSender(cfg), nil
	}
	return nil, ErrNotConfigured
}

// APISender posts messages as JSON to a Resend-style endpoint with a bearer key.
type APISender struct {
	cfg  Config
	http *http.Client
}

// NewAPISender creates an HTTP API sender.
func NewAPISender(cfg Config, client *http.Client) *APISender {
	if client == nil {
		client = http.DefaultClient
	}
	return &APISender{cfg: cfg, http: client}
}

type apiRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers msg. Any non-2xx response is an error carrying the response body.
func (s *APISender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(apiRequest{
		From:    s.cfg.from(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.BodyHTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email api status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// SMTPSender delivers through an SMTP relay with PLAIN auth when credentials are set.
type SMTPSender struct {
	cfg      Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

// Send delivers msg. The context is only checked before dialling.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	if err := s.sendMail(addr, auth, s.cfg.FromAddress, []string{msg.To}, BuildMIME(s.cfg.from(), msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// BuildMIME returns an RFC 5322 message with an HTML body.
func BuildMIME(from string, msg Message) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.BodyHTML)
	return b.Bytes()
}
