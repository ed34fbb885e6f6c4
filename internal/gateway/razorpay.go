// Package gateway talks to the Razorpay REST API: order creation, payment lookup and
// checkout signature verification. Only the server ever sees the key secret.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const (
	defaultBaseURL    = "https://api.razorpay.com/v1"
	defaultTimeout    = 15 * time.Second
	fetchMaxAttempts  = 3
	defaultRetryDelay = 500 * time.Millisecond
)

var hundred = decimal.NewFromInt(100)

// errCredentialsRejected marks 401/403 answers. They surface as ErrGatewayUnavailable but are
// never retried.
var errCredentialsRejected = errors.New("gateway credentials rejected")

// Config configures the gateway client.
type Config struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Order is the gateway's order object. Amount is in minor units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is the authoritative payment record fetched from the gateway.
// Amount, Fee and Tax are in minor units.
type Payment struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	Status   string          `json:"status"`
	Method   string          `json:"method"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Bank     string          `json:"bank"`
	Wallet   string          `json:"wallet"`
	VPA      string          `json:"vpa"`
	Fee      int64           `json:"fee"`
	Tax      int64           `json:"tax"`
	Raw      json.RawMessage `json:"-"`
}

// LedgerStatus maps the gateway's payment status onto the transaction status set.
func (p *Payment) LedgerStatus() string {
	switch p.Status {
	case "captured":
		return models.TxStatusCaptured
	case "authorized":
		return models.TxStatusPending
	case "failed":
		return models.TxStatusFailed
	case "refunded":
		return models.TxStatusRefunded
	default:
		return models.TxStatusCreated
	}
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Client is a Razorpay API client using HTTP basic auth.
type Client struct {
	keyID      string
	keySecret  string
	baseURL    string
	retryDelay time.Duration
	http       *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client. Zero values fall back to the live API URL and a 15s timeout.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Client{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retryDelay: cfg.RetryDelay,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// KeyID returns the public key id the checkout widget needs.
func (c *Client) KeyID() string { return c.keyID }

// ToMinorUnits converts a major-unit amount to minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, apperr.Validation("amount must be positive, got %s", amount.String())
	}
	return amount.Mul(hundred).Round(0).IntPart(), nil
}

// FromMinorUnits converts minor units back to a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Sign returns hex(HMAC_SHA256(secret, orderID + "|" + paymentID)).
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the checkout signature for orderID and paymentID.
// The comparison is constant time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// VerifyPaymentSignature checks a checkout callback against this client's secret.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return VerifySignature(orderID, paymentID, signature, c.keySecret)
}

// CreateOrder creates a gateway order for amount (major units). Notes are attached for reconciliation in the dashboard.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*Order, error) {
	minor, err := ToMinorUnits(amount)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]interface{}{
		"amount":   minor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		c.logger.Warn("create order failed", zap.Error(err), zap.String("receipt", receipt))
		return nil, err
	}
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", apperr.ErrGatewayUnavailable, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order response missing id", apperr.ErrGatewayUnavailable)
	}
	c.logger.Info("gateway order created", zap.String("order_id", order.ID), zap.Int64("amount_minor", order.Amount))
	return &order, nil
}

// FetchPayment returns the gateway's record for paymentID. Network errors, 429 and 5xx are tried
// up to fetchMaxAttempts times; rejected credentials fail on the first answer.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, apperr.Validation("payment id required")
	}
	path := "/payments/" + url.PathEscape(paymentID)

	var raw []byte
	var err error
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, ctx.Err())
			}
		}
		raw, err = c.do(ctx, http.MethodGet, path, nil)
		if err == nil || !errors.Is(err, apperr.ErrGatewayUnavailable) || errors.Is(err, errCredentialsRejected) {
			break
		}
		c.logger.Warn("fetch payment attempt failed", zap.Error(err), zap.String("payment_id", paymentID), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, err
	}

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", apperr.ErrGatewayUnavailable, err)
	}
	p.Raw = raw
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperr.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)
	desc := apiErr.Error.Description
	if desc == "" {
		desc = http.StatusText(resp.StatusCode)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s: %d %s: %w", apperr.ErrGatewayUnavailable, method, path, resp.StatusCode, desc, errCredentialsRejected)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s %s: %d %s", apperr.ErrGatewayUnavailable, method, path, resp.StatusCode, desc)
	default:
		return nil, fmt.Errorf("%w: gateway rejected request: %s", apperr.ErrValidation, desc)
	}
}
