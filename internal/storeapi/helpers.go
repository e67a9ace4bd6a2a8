package storeapi

import (
	"net/http"
	"strconv"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/goldleaf/storefront/internal/orders"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func ok(c echo.Context, data interface{}) error {
	return webserver.OK(c, data)
}

func created(c echo.Context, data interface{}) error {
	return webserver.Created(c, data)
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return webserver.Fail(c, status, code, message, details)
}

func paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return webserver.Paged(c, rows, total, page, pageSize)
}

func GetDB(c echo.Context) *gorm.DB {
	return webserver.GetDB(c)
}

func GetAppContext(c echo.Context) app.AppContext {
	return webserver.GetAppContext(c)
}

func orderService(c echo.Context) *orders.Service {
	return orders.FromApp(GetAppContext(c), GetDB(c))
}

// bindAndValidate decodes the body into v and runs the validator
func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request body", err.Error())
	}
	if err := c.Validate(v); err != nil {
		return webserver.HandleValidationError(c, err)
	}
	return nil
}

// failOrder maps cart, checkout and order errors to responses
func failOrder(c echo.Context, err error, what string) error {
	cause := errors.Cause(err)
	switch cause {
	case orders.ErrEmptyCart:
		return fail(c, http.StatusBadRequest, "EMPTY_CART", cause.Error(), nil)
	case orders.ErrOutOfStock:
		return fail(c, http.StatusConflict, "OUT_OF_STOCK", cause.Error(), err.Error())
	case orders.ErrProductUnavailable:
		return fail(c, http.StatusNotFound, "PRODUCT_UNAVAILABLE", cause.Error(), nil)
	case orders.ErrInvalidQuantity, orders.ErrSizeRequired, orders.ErrInvalidSize,
		orders.ErrInvalidPayment, orders.ErrCODDisabled, orders.ErrInvalidStatus:
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", cause.Error(), nil)
	case orders.ErrOfferNotFound:
		return fail(c, http.StatusNotFound, "OFFER_NOT_FOUND", cause.Error(), nil)
	case orders.ErrNotCancellable, orders.ErrStaleOrder:
		return fail(c, http.StatusConflict, "INVALID_STATE", cause.Error(), nil)
	case orders.ErrPaymentMismatch:
		return fail(c, http.StatusBadRequest, "PAYMENT_MISMATCH", cause.Error(), nil)
	case offers.ErrInactive, offers.ErrNotStarted, offers.ErrExpired, offers.ErrUsageExhausted,
		offers.ErrUserLimit, offers.ErrMinOrderValue, offers.ErrNoEligibleItems, offers.ErrUnknownType:
		return fail(c, http.StatusUnprocessableEntity, "OFFER_NOT_APPLICABLE", cause.Error(), nil)
	}
	return webserver.FailDB(c, err, what)
}

// parseID parses an int64 id sent as a JSON string; empty yields 0
func parseID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
