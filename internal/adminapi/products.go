package adminapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/catalog"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type productPayload struct {
	SKU            string          `json:"sku" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,min=1,max=200"`
	Slug           string          `json:"slug" validate:"omitempty,max=220"`
	Description    string          `json:"description"`
	Material       string          `json:"material" validate:"max=60"`
	Purity         string          `json:"purity" validate:"max=20"`
	WeightGrams    decimal.Decimal `json:"weight_grams"`
	Price          decimal.Decimal `json:"price"`
	CompareAtPrice decimal.Decimal `json:"compare_at_price"`
	Stock          int             `json:"stock" validate:"min=0"`
	CategoryID     string          `json:"category_id" validate:"omitempty,numeric"`
	Tags           []string        `json:"tags" validate:"dive,min=1,max=60"`
	SizeIDs        []string        `json:"size_ids"`
	Status         string          `json:"status" validate:"omitempty,oneof=active draft archived"`
	IsFeatured     bool            `json:"is_featured"`
}

type stockPayload struct {
	Delta int `json:"delta" validate:"required"`
}

var adminProductSorts = map[string]string{
	"id":         "products.id",
	"sku":        "products.sku",
	"name":       "products.name",
	"price":      "products.price",
	"stock":      "products.stock",
	"created_at": "products.created_at",
	"updated_at": "products.updated_at",
}

func registerProductRoutes() {
	webserver.AdminGET("/products", listProducts)
	webserver.AdminGET("/products/:id", getProduct)
	webserver.AdminPOST("/products", createProduct)
	webserver.AdminPUT("/products/:id", updateProduct)
	webserver.AdminDELETE("/products/:id", deleteProduct)
	webserver.AdminPOST("/products/:id/stock", adjustStock)
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	f := catalog.ParseFilter(c.QueryParams())
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		f.Statuses = strings.Split(status, ",")
	}
	db := GetDB(c)
	if c.QueryParam("low_stock") != "" {
		db = db.Where("products.stock <= ?", 3)
	}
	order := webserver.SortOrder(c, adminProductSorts, "products.id")
	rows, total, err := catalog.List(c.Request().Context(), db, f, order, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	p, err := catalog.Load(c.Request().Context(), GetDB(c), "id = ?", id)
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	return ok(c, p)
}

// resolveTags finds or creates tags by name
func resolveTags(tx *gorm.DB, names []string) ([]domain.Tag, error) {
	tags := make([]domain.Tag, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		var tag domain.Tag
		err := tx.Where("LOWER(name) = ?", strings.ToLower(name)).
			Attrs(domain.Tag{Name: name}).
			FirstOrCreate(&tag).Error
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func resolveSizes(tx *gorm.DB, raw []string) ([]domain.Size, error) {
	ids, err := parseIDs(raw)
	if err != nil {
		return nil, err
	}
	sizes := make([]domain.Size, 0, len(ids))
	if len(ids) == 0 {
		return sizes, nil
	}
	if err := tx.Where("id IN ?", ids).Find(&sizes).Error; err != nil {
		return nil, err
	}
	if len(sizes) != len(ids) {
		return nil, errors.New("unknown size id")
	}
	return sizes, nil
}

var errInvalidProduct = errors.New("invalid product")

func (p *productPayload) apply(prod *domain.Product) error {
	if !p.Price.IsPositive() {
		return errors.Wrap(errInvalidProduct, "price must be positive")
	}
	if p.CompareAtPrice.IsNegative() || p.WeightGrams.IsNegative() {
		return errors.Wrap(errInvalidProduct, "amounts must not be negative")
	}
	categoryID, err := optionalID(p.CategoryID)
	if err != nil {
		return errors.Wrap(errInvalidProduct, err.Error())
	}
	slug := common.Slugify(p.Slug)
	if slug == "" {
		slug = common.Slugify(p.Name)
	}
	prod.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	prod.Name = strings.TrimSpace(p.Name)
	prod.Slug = slug
	prod.Description = p.Description
	prod.Material = p.Material
	prod.Purity = p.Purity
	prod.WeightGrams = p.WeightGrams
	prod.Price = p.Price
	prod.CompareAtPrice = p.CompareAtPrice
	prod.Stock = p.Stock
	prod.CategoryID = categoryID
	prod.Status = p.Status
	if prod.Status == "" {
		prod.Status = domain.ProductActive
	}
	prod.IsFeatured = p.IsFeatured
	return nil
}

func saveProduct(ctx context.Context, db *gorm.DB, prod *domain.Product, payload *productPayload, isNew bool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prod.CategoryID != nil {
			if err := tx.Select("id").First(&domain.Category{}, *prod.CategoryID).Error; err != nil {
				return errors.Wrap(errInvalidProduct, "unknown category")
			}
		}
		tags, err := resolveTags(tx, payload.Tags)
		if err != nil {
			return err
		}
		sizes, err := resolveSizes(tx, payload.SizeIDs)
		if err != nil {
			return errors.Wrap(errInvalidProduct, err.Error())
		}
		if isNew {
			if err := tx.Omit("Tags", "Sizes", "Media", "Category").Create(prod).Error; err != nil {
				return err
			}
		} else if err := tx.Omit("Tags", "Sizes", "Media", "Category").Save(prod).Error; err != nil {
			return err
		}
		if err := tx.Model(prod).Association("Tags").Replace(tags); err != nil {
			return err
		}
		return tx.Model(prod).Association("Sizes").Replace(sizes)
	})
}

func writeProduct(c echo.Context, prod *domain.Product, isNew bool) error {
	var payload productPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	if err := payload.apply(prod); err != nil {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	ctx := c.Request().Context()
	if err := saveProduct(ctx, GetDB(c), prod, &payload, isNew); err != nil {
		if errors.Is(err, errInvalidProduct) {
			return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		}
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "A product with this SKU or slug already exists", err.Error())
		}
		return webserver.FailDB(c, err, "Product")
	}
	fresh, err := catalog.Load(ctx, GetDB(c), "id = ?", prod.ID)
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	if isNew {
		return created(c, fresh)
	}
	return ok(c, fresh)
}

func createProduct(c echo.Context) error {
	return writeProduct(c, &domain.Product{}, true)
}

func updateProduct(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var prod domain.Product
	if err := GetDB(c).First(&prod, id).Error; err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	return writeProduct(c, &prod, false)
}

// deleteProduct removes the product with its media, reviews, picks and cart lines.
// Order items keep their snapshot.
func deleteProduct(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	db := GetDB(c)
	var prod domain.Product
	if err := db.Preload("Media").First(&prod, id).Error; err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&domain.CartItem{}, &domain.TopPickProduct{}, &domain.Review{}, &domain.Media{}} {
			if err := tx.Where("product_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&prod).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&prod).Association("Sizes").Clear(); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM offer_products WHERE product_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&prod).Error
	})
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	if store := GetAppContext(c).ObjectStore(); store != nil {
		for _, m := range prod.Media {
			if err := store.Delete(c.Request().Context(), m.ObjectKey); err != nil {
				zap.L().Warn("adminapi: delete media object failed", zap.String("key", m.ObjectKey), zap.Error(err))
			}
		}
	}
	return ok(c, map[string]interface{}{"id": id})
}

// adjustStock adds delta units, refusing to go below zero
func adjustStock(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload stockPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	res := db.Model(&domain.Product{}).
		Where("id = ? AND stock + ? >= 0", id, payload.Delta).
		Update("stock", gorm.Expr("stock + ?", payload.Delta))
	if res.Error != nil {
		return webserver.FailDB(c, res.Error, "Product")
	}
	if res.RowsAffected == 0 {
		if err := db.Select("id").First(&domain.Product{}, id).Error; err != nil {
			return webserver.FailDB(c, err, "Product")
		}
		return fail(c, http.StatusConflict, "OUT_OF_STOCK", "Stock cannot go below zero", nil)
	}
	var prod domain.Product
	if err := db.First(&prod, id).Error; err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	return ok(c, prod)
}
