package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrorBody error part of the response envelope
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Meta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Response envelope used by every API endpoint
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func Fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	})
}

func Paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rows,
		Meta:    &Meta{Total: total, Page: page, PageSize: pageSize},
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ParsePagination reads page and page_size (or perPage) query params
func ParsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	raw := c.QueryParam("page_size")
	if raw == "" {
		raw = c.QueryParam("perPage")
	}
	pageSize, _ = strconv.Atoi(raw)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ParseIDParam parses a positive int64 path param
func ParseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid %s", name)
	}
	return id, nil
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// HandleValidationError maps validator failures to a 400 response
func HandleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		return Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", details)
	}
	return Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err.Error())
}

// IsDuplicateKey reports unique constraint violations on postgres and sqlite
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// FailDB maps a database error to 404, 409 or 500
func FailDB(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Fail(c, http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
	case IsDuplicateKey(err):
		return Fail(c, http.StatusConflict, "ALREADY_EXISTS", what+" already exists", err.Error())
	}
	return Fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to process "+strings.ToLower(what), err.Error())
}

// ILike adds a case-insensitive substring match on column
func ILike(db *gorm.DB, column, q string) *gorm.DB {
	if strings.EqualFold(db.Name(), "postgres") {
		return db.Where(column+" ILIKE ?", "%"+q+"%")
	}
	return db.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(q)+"%")
}

// SortOrder resolves sort/order query params against a whitelist
func SortOrder(c echo.Context, allowed map[string]string, fallback string) string {
	col, ok := allowed[strings.TrimSpace(c.QueryParam("sort"))]
	if !ok || col == "" {
		col = fallback
	}
	order := strings.ToUpper(strings.TrimSpace(c.QueryParam("order")))
	if order != "ASC" {
		order = "DESC"
	}
	return col + " " + order
}
