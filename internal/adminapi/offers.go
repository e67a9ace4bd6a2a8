package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type offerPayload struct {
	Code          string          `json:"code" validate:"required,max=40"`
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description"`
	Type          string          `json:"type" validate:"required,oneof=percentage fixed bogo"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	MaxDiscount   decimal.Decimal `json:"max_discount"`
	BuyQty        int             `json:"buy_qty"`
	GetQty        int             `json:"get_qty"`
	StartsAt      string          `json:"starts_at"`
	EndsAt        string          `json:"ends_at"`
	UsageLimit    int64           `json:"usage_limit" validate:"min=0"`
	PerUserLimit  int64           `json:"per_user_limit" validate:"min=0"`
	IsPublic      *bool           `json:"is_public"`
	Status        string          `json:"status" validate:"omitempty,oneof=active inactive expired"`
	ProductIDs    []string        `json:"product_ids"`
	CategoryIDs   []string        `json:"category_ids"`
}

// offerView adds the count of orders still holding the offer
type offerView struct {
	*domain.Offer
	Uses int64 `json:"uses"`
}

var offerSorts = map[string]string{
	"id":         "id",
	"code":       "code",
	"ends_at":    "ends_at",
	"used_count": "used_count",
	"created_at": "created_at",
}

func registerOfferRoutes() {
	webserver.AdminGET("/offers", listOffers)
	webserver.AdminGET("/offers/:id", getOffer)
	webserver.AdminPOST("/offers", createOffer)
	webserver.AdminPUT("/offers/:id", updateOffer)
	webserver.AdminDELETE("/offers/:id", deleteOffer)
}

func listOffers(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.Offer{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		query = webserver.ILike(query, "code", q)
	}
	var total int64
	query.Count(&total)
	var rows []domain.Offer
	err := query.Order(webserver.SortOrder(c, offerSorts, "id")).
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	return paged(c, rows, total, page, pageSize)
}

func getOffer(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid offer ID", nil)
	}
	db := GetDB(c)
	var offer domain.Offer
	if err := db.Preload("Products").Preload("Categories").First(&offer, id).Error; err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	var uses int64
	err = db.Model(&domain.Order{}).
		Where("offer_id = ? AND status NOT IN ?", offer.ID, []domain.OrderStatus{domain.OrderCancelled, domain.OrderReturned}).
		Count(&uses).Error
	if err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	return ok(c, offerView{Offer: &offer, Uses: uses})
}

func parseWhen(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := dateparse.ParseLocal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid date %q", s)
	}
	return &t, nil
}

func (p *offerPayload) apply(offer *domain.Offer) error {
	startsAt, err := parseWhen(p.StartsAt)
	if err != nil {
		return err
	}
	endsAt, err := parseWhen(p.EndsAt)
	if err != nil {
		return err
	}
	offer.Code = p.Code
	offer.Title = strings.TrimSpace(p.Title)
	offer.Description = p.Description
	offer.Type = p.Type
	offer.Value = p.Value
	offer.MinOrderValue = p.MinOrderValue
	offer.MaxDiscount = p.MaxDiscount
	offer.BuyQty, offer.GetQty = p.BuyQty, p.GetQty
	if offer.Type == domain.OfferBogo {
		if offer.BuyQty == 0 {
			offer.BuyQty = 1
		}
		if offer.GetQty == 0 {
			offer.GetQty = 1
		}
	}
	offer.StartsAt, offer.EndsAt = startsAt, endsAt
	offer.UsageLimit = p.UsageLimit
	offer.PerUserLimit = p.PerUserLimit
	if p.IsPublic != nil {
		offer.IsPublic = *p.IsPublic
	} else if offer.ID == 0 {
		offer.IsPublic = true
	}
	offer.Status = p.Status
	return offers.Validate(offer)
}

func saveOffer(c echo.Context, offer *domain.Offer, isNew bool) error {
	var payload offerPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	if err := payload.apply(offer); err != nil {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	productIDs, err := parseIDs(payload.ProductIDs)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}
	categoryIDs, err := parseIDs(payload.CategoryIDs)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}
	db := GetDB(c)
	err = db.Transaction(func(tx *gorm.DB) error {
		products := make([]domain.Product, 0, len(productIDs))
		if len(productIDs) > 0 {
			if err := tx.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
				return err
			}
		}
		categories := make([]domain.Category, 0, len(categoryIDs))
		if len(categoryIDs) > 0 {
			if err := tx.Where("id IN ?", categoryIDs).Find(&categories).Error; err != nil {
				return err
			}
		}
		if len(products) != len(productIDs) || len(categories) != len(categoryIDs) {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Omit("Products", "Categories").Save(offer).Error; err != nil {
			return err
		}
		// is_public defaults to true on insert
		if !offer.IsPublic {
			if err := tx.Model(offer).Update("is_public", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(offer).Association("Products").Replace(products); err != nil {
			return err
		}
		return tx.Model(offer).Association("Categories").Replace(categories)
	})
	if err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "Offer code already exists", offer.Code)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusBadRequest, "INVALID_ID", "Unknown product or category", nil)
		}
		return webserver.FailDB(c, err, "Offer")
	}
	db.Preload("Products").Preload("Categories").First(offer, offer.ID)
	if isNew {
		return created(c, offer)
	}
	return ok(c, offer)
}

func createOffer(c echo.Context) error {
	return saveOffer(c, &domain.Offer{}, true)
}

func updateOffer(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid offer ID", nil)
	}
	var offer domain.Offer
	if err := GetDB(c).First(&offer, id).Error; err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	return saveOffer(c, &offer, false)
}

// deleteOffer detaches the offer from its sets. Orders keep the code and id they were placed with.
func deleteOffer(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid offer ID", nil)
	}
	db := GetDB(c)
	var offer domain.Offer
	if err := db.First(&offer, id).Error; err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&offer).Association("Products").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&offer).Association("Categories").Clear(); err != nil {
			return err
		}
		return tx.Delete(&offer).Error
	})
	if err != nil {
		return webserver.FailDB(c, err, "Offer")
	}
	return ok(c, map[string]interface{}{"id": id})
}
