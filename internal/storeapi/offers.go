package storeapi

import (
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type applyOfferPayload struct {
	Code string `json:"code" validate:"required,max=40"`
}

func registerOfferRoutes() {
	webserver.PubGET("/offers", listOffers)
	webserver.ApiPOST("/offers/apply", applyOffer)
}

// listOffers active public offers currently inside their validity window
func listOffers(c echo.Context) error {
	now := time.Now()
	rows := make([]domain.Offer, 0)
	err := GetDB(c).
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "slug") }).
		Preload("Categories").
		Where("status = ? AND is_public = ?", domain.OfferActive, true).
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at >= ?", now).
		Where("usage_limit = 0 OR used_count < usage_limit").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	return ok(c, rows)
}

// applyOffer previews the discount the code grants on the current cart
func applyOffer(c echo.Context) error {
	var payload applyOfferPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	quote, err := orderService(c).Quote(c.Request().Context(), webserver.CurrentUserID(c), payload.Code)
	if err != nil {
		return failOrder(c, err, "Offer")
	}
	return ok(c, quote)
}
