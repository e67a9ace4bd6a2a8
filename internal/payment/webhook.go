package payment

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func decodeJSON(body string, v interface{}) error {
	return json.UnmarshalFromString(body, v)
}

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent the fields of a gateway webhook the store acts on
type WebhookEvent struct {
	Event          string
	GatewayOrderID string
	PaymentID      string
	Status         string
}

type webhookBody struct {
	Event string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, errors.Wrap(err, "payment: parse webhook")
	}
	if wb.Event == "" {
		return nil, errors.New("payment: webhook without event")
	}
	e := wb.Payload.Payment.Entity
	return &WebhookEvent{Event: wb.Event, GatewayOrderID: e.OrderID, PaymentID: e.ID, Status: e.Status}, nil
}
