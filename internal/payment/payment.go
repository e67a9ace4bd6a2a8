// Package payment talks to a Razorpay compatible payment gateway.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/goldleaf/storefront/config"
	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("payment gateway is not configured")

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway creates payment orders and verifies gateway signatures
type Gateway interface {
	CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*GatewayOrder, error)
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}

type Client struct {
	cfg     config.PaymentConfig
	timeout time.Duration
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{cfg: cfg, timeout: 15 * time.Second}
}

func (c *Client) KeyID() string {
	return c.cfg.KeyID
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*GatewayOrder, error) {
	if c.cfg.KeyID == "" || c.cfg.KeySecret == "" {
		return nil, ErrNotConfigured
	}
	if currency == "" {
		currency = c.cfg.Currency
	}
	var out GatewayOrder
	var body string
	var code int
	err := gout.POST(strings.TrimRight(c.cfg.BaseURL, "/")+"/orders").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret).
		SetJSON(gout.H{
			"amount":   ToMinorUnits(amount),
			"currency": currency,
			"receipt":  receipt,
		}).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "payment: create order")
	}
	if code >= http.StatusBadRequest {
		var ae apiError
		_ = decodeJSON(body, &ae)
		return nil, errors.Errorf("payment: gateway returned %d: %s", code, ae.Error.Description)
	}
	if err := decodeJSON(body, &out); err != nil {
		return nil, errors.Wrap(err, "payment: decode order")
	}
	zap.L().Info("payment: gateway order created", zap.String("gateway_order_id", out.ID), zap.String("receipt", receipt))
	return &out, nil
}

// VerifyPaymentSignature checks hex(HMAC-SHA256(key_secret, order_id|payment_id))
func (c *Client) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	if c.cfg.KeySecret == "" {
		return false
	}
	return hmacEqual(c.cfg.KeySecret, []byte(gatewayOrderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks hex(HMAC-SHA256(webhook_secret, body))
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.cfg.WebhookSecret == "" {
		return false
	}
	return hmacEqual(c.cfg.WebhookSecret, body, signature)
}

// Sign computes the signature the gateway would send, used by tests and tooling
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func hmacEqual(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// ToMinorUnits converts rupees to paise
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
