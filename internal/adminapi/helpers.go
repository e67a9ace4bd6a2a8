package adminapi

import (
	"net/http"
	"strconv"

	"github.com/goldleaf/storefront/internal/app"
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

func parsePagination(c echo.Context) (int, int) {
	return webserver.ParsePagination(c)
}

func handleValidationError(c echo.Context, err error) error {
	return webserver.HandleValidationError(c, err)
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

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(v); err != nil {
		return handleValidationError(c, err)
	}
	return nil
}

// parseIDs converts JSON string ids, rejecting anything non-numeric
func parseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optionalID(s string) (*int64, error) {
	if s == "" || s == "0" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.Errorf("invalid id %q", s)
	}
	return &id, nil
}
