package storeapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/orders"
	"github.com/goldleaf/storefront/internal/payment"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type checkoutPayload struct {
	AddressID     string          `json:"address_id" validate:"omitempty,numeric"`
	Address       *addressPayload `json:"address" validate:"required_without=AddressID"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cod online"`
	OfferCode     string          `json:"offer_code" validate:"max=40"`
	Notes         string          `json:"notes" validate:"max=500"`
}

type verifyPaymentPayload struct {
	GatewayOrderID string `json:"gateway_order_id" validate:"required"`
	PaymentID      string `json:"payment_id" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

// paymentIntent what the client needs to open the gateway checkout
type paymentIntent struct {
	GatewayOrderID string `json:"gateway_order_id"`
	KeyID          string `json:"key_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

type checkoutResponse struct {
	Order   *domain.Order  `json:"order"`
	Payment *paymentIntent `json:"payment,omitempty"`
}

// signatureHeader webhook signature header sent by the gateway
const signatureHeader = "X-Razorpay-Signature"

func registerCheckoutRoutes() {
	webserver.ApiPOST("/orders", checkout)
	webserver.ApiPOST("/orders/:id/payment/verify", verifyPayment)
	webserver.PubPOST("/payments/webhook", paymentWebhook)
}

func shippingAddress(c echo.Context, payload *checkoutPayload) (*domain.Address, error) {
	if payload.AddressID != "" {
		id, _ := parseID(payload.AddressID)
		var addr domain.Address
		if err := GetDB(c).Where("id = ? AND user_id = ?", id, webserver.CurrentUserID(c)).First(&addr).Error; err != nil {
			return nil, err
		}
		return &addr, nil
	}
	addr := &domain.Address{}
	payload.Address.apply(addr)
	return addr, nil
}

func checkout(c echo.Context) error {
	var payload checkoutPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	addr, err := shippingAddress(c, &payload)
	if err != nil {
		return webserver.FailDB(c, err, "Address")
	}
	ctx := c.Request().Context()
	userID := webserver.CurrentUserID(c)
	svc := orderService(c)
	order, err := svc.PlaceOrder(ctx, orders.CheckoutInput{
		UserID:        userID,
		Address:       *addr,
		PaymentMethod: payload.PaymentMethod,
		OfferCode:     payload.OfferCode,
		Notes:         strings.TrimSpace(payload.Notes),
	})
	if err != nil {
		return failOrder(c, err, "Order")
	}
	if order.PaymentMethod != domain.PaymentMethodOnline {
		return created(c, checkoutResponse{Order: order})
	}

	appCtx := GetAppContext(c)
	gateway := appCtx.Payment()
	currency := appCtx.StoreSettings().Currency
	gwOrder, err := gateway.CreateOrder(ctx, order.OrderNo, order.Total, currency)
	if err == nil {
		err = svc.AttachGatewayOrder(ctx, order.ID, gwOrder.ID)
	}
	if err != nil {
		zap.L().Error("checkout: create gateway order failed", zap.Int64("order_id", order.ID), zap.Error(err))
		if _, cerr := svc.Cancel(ctx, order.ID, 0, "payment gateway unavailable"); cerr != nil {
			zap.L().Error("checkout: cancel order failed", zap.Int64("order_id", order.ID), zap.Error(cerr))
		}
		return fail(c, http.StatusBadGateway, "PAYMENT_GATEWAY_ERROR", "Unable to start the payment, please try again", err.Error())
	}
	order.GatewayOrderID = gwOrder.ID
	return created(c, checkoutResponse{
		Order: order,
		Payment: &paymentIntent{
			GatewayOrderID: gwOrder.ID,
			KeyID:          gateway.KeyID(),
			Amount:         gwOrder.Amount,
			Currency:       gwOrder.Currency,
		},
	})
}

func verifyPayment(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload verifyPaymentPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	ctx := c.Request().Context()
	svc := orderService(c)
	order, err := svc.Get(ctx, id, webserver.CurrentUserID(c))
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	if order.GatewayOrderID == "" || order.GatewayOrderID != payload.GatewayOrderID {
		return failOrder(c, orders.ErrPaymentMismatch, "Order")
	}
	if !GetAppContext(c).Payment().VerifyPaymentSignature(payload.GatewayOrderID, payload.PaymentID, payload.Signature) {
		return fail(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Payment signature verification failed", nil)
	}
	order, _, err = svc.MarkPaid(ctx, payload.GatewayOrderID, payload.PaymentID)
	if err != nil {
		return failOrder(c, err, "Order")
	}
	return ok(c, order)
}

func paymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read body", err.Error())
	}
	appCtx := GetAppContext(c)
	if !appCtx.Payment().VerifyWebhookSignature(body, c.Request().Header.Get(signatureHeader)) {
		return fail(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed", nil)
	}
	event, err := payment.ParseWebhook(body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed webhook", err.Error())
	}
	ctx := c.Request().Context()
	svc := orderService(c)
	result := "ignored"
	switch event.Event {
	case payment.EventPaymentCaptured, payment.EventOrderPaid:
		_, changed, err := svc.MarkPaid(ctx, event.GatewayOrderID, event.PaymentID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			zap.L().Warn("payment webhook: unknown gateway order", zap.String("gateway_order_id", event.GatewayOrderID))
		case err != nil:
			return failOrder(c, err, "Order")
		case changed:
			result = "paid"
		default:
			result = "duplicate"
		}
	case payment.EventPaymentFailed:
		if err := svc.MarkPaymentFailed(ctx, event.GatewayOrderID); err != nil {
			return failOrder(c, err, "Order")
		}
		result = "failed"
	}
	return ok(c, map[string]string{"event": event.Event, "result": result})
}
