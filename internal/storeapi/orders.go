package storeapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/shipping"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type cancelPayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

type trackingView struct {
	OrderNo     string                `json:"order_no"`
	Status      domain.OrderStatus    `json:"status"`
	Courier     string                `json:"courier"`
	AWB         string                `json:"awb"`
	TrackingURL string                `json:"tracking_url"`
	Shipment    *shipping.TrackResult `json:"shipment,omitempty"`
	Live        bool                  `json:"live"`
}

func registerOrderRoutes() {
	webserver.ApiGET("/orders", listOrders)
	webserver.ApiGET("/orders/:id", getOrder)
	webserver.ApiPOST("/orders/:id/cancel", cancelOrder)
	webserver.ApiGET("/orders/:id/tracking", trackOrder)
}

func listOrders(c echo.Context) error {
	page, pageSize := webserver.ParsePagination(c)
	db := GetDB(c).Model(&domain.Order{}).Where("user_id = ?", webserver.CurrentUserID(c))
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		db = db.Where("status = ?", status)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	rows := make([]domain.Order, 0)
	if err := db.Preload("Items").Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	return paged(c, rows, total, page, pageSize)
}

func getOrder(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	order, err := orderService(c).Get(c.Request().Context(), id, webserver.CurrentUserID(c))
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	return ok(c, order)
}

func cancelOrder(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload cancelPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	note := strings.TrimSpace(payload.Reason)
	if note == "" {
		note = "cancelled by customer"
	}
	order, err := orderService(c).Cancel(c.Request().Context(), id, webserver.CurrentUserID(c), note)
	if err != nil {
		return failOrder(c, err, "Order")
	}
	return ok(c, order)
}

// trackOrder returns the stored shipment details plus a live lookup when the tracker answers
func trackOrder(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	order, err := orderService(c).Get(c.Request().Context(), id, webserver.CurrentUserID(c))
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	if order.AWB == "" {
		return fail(c, http.StatusNotFound, "NOT_SHIPPED", "This order has not been shipped yet", nil)
	}
	view := trackingView{
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		Courier:     order.Courier,
		AWB:         order.AWB,
		TrackingURL: order.TrackingURL,
	}
	tracker := GetAppContext(c).Tracker()
	if tracker == nil {
		return ok(c, view)
	}
	res, err := tracker.Track(c.Request().Context(), order.AWB)
	switch {
	case err == nil:
		view.Shipment = res
		view.Live = true
		if view.TrackingURL == "" {
			view.TrackingURL = res.TrackingURL
		}
	case errors.Is(err, shipping.ErrNoTracking), errors.Is(err, shipping.ErrNotConfigured):
	default:
		return fail(c, http.StatusBadGateway, "TRACKING_UNAVAILABLE", "Tracking service is unavailable", err.Error())
	}
	return ok(c, view)
}
