package adminapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type userUpdatePayload struct {
	Role   string `json:"role" validate:"omitempty,oneof=customer admin"`
	Status string `json:"status" validate:"omitempty,oneof=enabled disabled"`
}

// userDetail account with its addresses and order totals
type userDetail struct {
	*domain.User
	OrderCount int64           `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

var userSorts = map[string]string{
	"id":         "id",
	"name":       "name",
	"created_at": "created_at",
	"last_login": "last_login",
}

func registerUserRoutes() {
	webserver.AdminGET("/users", listUsers)
	webserver.AdminGET("/users/:id", getUser)
	webserver.AdminPUT("/users/:id", updateUser)
}

func listUsers(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.User{})
	if role := c.QueryParam("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}
	var total int64
	query.Count(&total)
	var rows []domain.User
	err := query.Order(webserver.SortOrder(c, userSorts, "id")).
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	return paged(c, rows, total, page, pageSize)
}

func getUser(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	db := GetDB(c)
	var user domain.User
	if err := db.Preload("Addresses").First(&user, id).Error; err != nil {
		return webserver.FailDB(c, err, "User")
	}
	detail := userDetail{User: &user}
	var agg struct {
		N     int64
		Total decimal.NullDecimal
	}
	err = db.Model(&domain.Order{}).
		Select("COUNT(*) AS n, SUM(total) AS total").
		Where("user_id = ? AND status NOT IN ?", id, []domain.OrderStatus{domain.OrderCancelled, domain.OrderReturned}).
		Scan(&agg).Error
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	detail.OrderCount = agg.N
	detail.TotalSpent = agg.Total.Decimal
	return ok(c, detail)
}

// updateUser changes role or status. Admins cannot demote or disable themselves.
func updateUser(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	var payload userUpdatePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	if id == webserver.CurrentUserID(c) &&
		(payload.Role == domain.RoleCustomer || payload.Status == common.DISABLED) {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "You cannot demote or disable your own account", nil)
	}
	db := GetDB(c)
	var user domain.User
	if err := db.First(&user, id).Error; err != nil {
		return webserver.FailDB(c, err, "User")
	}
	if payload.Role != "" {
		user.Role = payload.Role
	}
	if payload.Status != "" {
		user.Status = payload.Status
	}
	if err := db.Model(&user).Select("role", "status").Updates(&user).Error; err != nil {
		return webserver.FailDB(c, err, "User")
	}
	return ok(c, user)
}
