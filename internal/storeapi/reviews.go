package storeapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/catalog"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type reviewPayload struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Title   string `json:"title" validate:"max=200"`
	Comment string `json:"comment" validate:"max=4000"`
}

// reviewView review as shown publicly, without the author's contact details
type reviewView struct {
	ID        int64     `json:"id,string"`
	ProductID int64     `json:"product_id,string"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func registerReviewRoutes() {
	webserver.PubGET("/products/:id/reviews", listReviews)
	webserver.ApiPOST("/products/:id/reviews", createReview)
	webserver.ApiDELETE("/reviews/:id", deleteReview)
}

func listReviews(c echo.Context) error {
	productID, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	page, pageSize := webserver.ParsePagination(c)
	db := GetDB(c).Model(&domain.Review{}).
		Where("reviews.product_id = ? AND reviews.status = ?", productID, domain.ReviewPublished)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	rows := make([]reviewView, 0)
	err = db.Select("reviews.id, reviews.product_id, users.name AS author, reviews.rating, reviews.title, reviews.comment, reviews.created_at").
		Joins("LEFT JOIN users ON users.id = reviews.user_id").
		Order(webserver.SortOrder(c, map[string]string{"rating": "reviews.rating", "created_at": "reviews.created_at"}, "reviews.created_at")).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	return paged(c, rows, total, page, pageSize)
}

func createReview(c echo.Context) error {
	productID, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload reviewPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var product domain.Product
	if err := db.Select("id", "status").Where("id = ? AND status = ?", productID, domain.ProductActive).First(&product).Error; err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	review := &domain.Review{
		UserID:    webserver.CurrentUserID(c),
		ProductID: productID,
		Rating:    payload.Rating,
		Title:     strings.TrimSpace(payload.Title),
		Comment:   strings.TrimSpace(payload.Comment),
		Status:    domain.ReviewPublished,
	}
	if err := db.Create(review).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_REVIEWED", "You have already reviewed this product", nil)
		}
		return webserver.FailDB(c, err, "Review")
	}
	if err := catalog.RefreshRating(c.Request().Context(), GetAppContext(c).DB(), productID); err != nil {
		zap.L().Error("reviews: refresh rating failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	return created(c, review)
}

func deleteReview(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid review ID", nil)
	}
	db := GetDB(c)
	var review domain.Review
	if err := db.Where("id = ? AND user_id = ?", id, webserver.CurrentUserID(c)).First(&review).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := db.Delete(&review).Error; err != nil {
		return webserver.FailDB(c, err, "Review")
	}
	if err := catalog.RefreshRating(c.Request().Context(), GetAppContext(c).DB(), review.ProductID); err != nil {
		zap.L().Error("reviews: refresh rating failed", zap.Int64("product_id", review.ProductID), zap.Error(err))
	}
	return ok(c, map[string]interface{}{"id": review.ID})
}
