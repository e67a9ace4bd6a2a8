// Package sms delivers text messages through an HTTP SMS gateway.
package sms

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goldleaf/storefront/config"
	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("sms gateway disabled")

// Sender sends a plain text message to a phone number
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
}

type Client struct {
	cfg     config.SmsConfig
	timeout time.Duration
}

func NewClient(cfg config.SmsConfig) *Client {
	return &Client{cfg: cfg, timeout: 10 * time.Second}
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

func (c *Client) SendText(ctx context.Context, phone, text string) error {
	if !c.cfg.Enabled || c.cfg.BaseURL == "" {
		return ErrDisabled
	}
	var resp sendResponse
	var body string
	var code int
	err := gout.POST(strings.TrimRight(c.cfg.BaseURL, "/")+"/messages").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H{"Authorization": "Bearer " + c.cfg.APIKey}).
		SetJSON(gout.H{
			"to":     phone,
			"sender": c.cfg.Sender,
			"text":   text,
		}).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "sms: request failed")
	}
	_ = jsoniter.UnmarshalFromString(body, &resp)
	if code >= http.StatusBadRequest {
		return errors.Errorf("sms: gateway returned %d: %s", code, resp.Message)
	}
	zap.L().Info("sms: message sent", zap.String("message_id", resp.MessageID))
	return nil
}
