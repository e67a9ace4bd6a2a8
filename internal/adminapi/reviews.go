package adminapi

import (
	"net/http"

	"github.com/goldleaf/storefront/internal/catalog"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
)

type reviewStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=published hidden"`
}

func registerReviewRoutes() {
	webserver.AdminGET("/reviews", listReviews)
	webserver.AdminPUT("/reviews/:id", moderateReview)
	webserver.AdminDELETE("/reviews/:id", deleteReview)
}

func listReviews(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.Review{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if pid := c.QueryParam("product_id"); pid != "" {
		query = query.Where("product_id = ?", cast.ToInt64(pid))
	}
	if r := c.QueryParam("rating"); r != "" {
		query = query.Where("rating = ?", cast.ToInt(r))
	}
	var total int64
	query.Count(&total)
	var rows []domain.Review
	err := query.Preload("User").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	return paged(c, rows, total, page, pageSize)
}

// moderateReview hides or republishes a review and refreshes the product rating
func moderateReview(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid review ID", nil)
	}
	var payload reviewStatusPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var review domain.Review
	if err := db.First(&review, id).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := db.Model(&review).Update("status", payload.Status).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := catalog.RefreshRating(c.Request().Context(), db, review.ProductID); err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	return ok(c, review)
}

func deleteReview(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid review ID", nil)
	}
	db := GetDB(c)
	var review domain.Review
	if err := db.First(&review, id).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := db.Delete(&review).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := catalog.RefreshRating(c.Request().Context(), db, review.ProductID); err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	return ok(c, map[string]interface{}{"id": id})
}
