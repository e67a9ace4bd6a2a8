package storeapi

import (
	"net/http"

	"github.com/goldleaf/storefront/internal/catalog"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var productSorts = map[string]string{
	"price":      "products.price",
	"name":       "products.name",
	"created_at": "products.created_at",
	"newest":     "products.created_at",
	"rating":     "products.avg_rating",
	"popularity": "products.review_count",
}

// productDetail product page payload
type productDetail struct {
	*domain.Product
	Ratings catalog.RatingSummary `json:"ratings"`
	Related []domain.Product      `json:"related"`
}

type homePage struct {
	Banners  []domain.HomePageImage  `json:"banners"`
	TopPicks []domain.TopPickProduct `json:"top_picks"`
	Featured []domain.Product        `json:"featured"`
}

func registerCatalogRoutes() {
	webserver.PubGET("/products", listProducts)
	webserver.PubGET("/products/:slug", getProduct)
	webserver.PubGET("/categories", listCategories)
	webserver.PubGET("/tags", listTags)
	webserver.PubGET("/sizes", listSizes)
	webserver.PubGET("/home", getHome)
}

func listProducts(c echo.Context) error {
	page, pageSize := webserver.ParsePagination(c)
	f := catalog.ParseFilter(c.QueryParams())
	f.Statuses = []string{domain.ProductActive}
	order := webserver.SortOrder(c, productSorts, "products.created_at")
	rows, total, err := catalog.List(c.Request().Context(), GetDB(c), f, order, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	ctx := c.Request().Context()
	db := GetDB(c)
	p, err := catalog.Load(ctx, db, "slug = ? AND status = ?", c.Param("slug"), domain.ProductActive)
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	detail := productDetail{Product: p, Related: []domain.Product{}}
	if detail.Ratings, err = catalog.Ratings(ctx, db, p.ID); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load ratings", err.Error())
	}
	if p.CategoryID != nil {
		f := catalog.Filter{CategoryID: *p.CategoryID, Statuses: []string{domain.ProductActive}, InStock: true}
		related, _, err := catalog.List(ctx, db.Where("products.id <> ?", p.ID), f, "products.review_count DESC", 1, 8)
		if err == nil {
			detail.Related = related
		}
	}
	return ok(c, detail)
}

func listCategories(c echo.Context) error {
	var rows []domain.Category
	if err := GetDB(c).Order("sort ASC, name ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Category")
	}
	return ok(c, rows)
}

func listTags(c echo.Context) error {
	var rows []domain.Tag
	if err := GetDB(c).Order("name ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	return ok(c, rows)
}

func listSizes(c echo.Context) error {
	var rows []domain.Size
	if err := GetDB(c).Order("sort ASC, id ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	return ok(c, rows)
}

func getHome(c echo.Context) error {
	db := GetDB(c)
	home := homePage{
		Banners:  []domain.HomePageImage{},
		TopPicks: []domain.TopPickProduct{},
		Featured: []domain.Product{},
	}
	var g errgroup.Group
	g.Go(func() error {
		return db.Where("status = ?", common.ENABLED).Order("position ASC, id ASC").Find(&home.Banners).Error
	})
	g.Go(func() error {
		return db.Preload("Product").
			Preload("Product.Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC, id ASC") }).
			Where("product_id IN (SELECT id FROM products WHERE status = ?)", domain.ProductActive).
			Order("position ASC, id ASC").
			Find(&home.TopPicks).Error
	})
	g.Go(func() error {
		yes := true
		rows, _, err := catalog.List(c.Request().Context(), db,
			catalog.Filter{Featured: &yes, Statuses: []string{domain.ProductActive}},
			"products.updated_at DESC", 1, 12)
		home.Featured = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load home page", err.Error())
	}
	return ok(c, home)
}
