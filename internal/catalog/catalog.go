// Package catalog holds product queries shared by the storefront and the admin panel.
package catalog

import (
	"context"
	"math"
	"net/url"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// Filter product list criteria. Zero values are ignored.
type Filter struct {
	Q          string
	Category   string // slug, matches the category and its direct children
	CategoryID int64
	Tag        string
	Size       string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Featured   *bool
	InStock    bool
	Statuses   []string
}

// ParseFilter reads q, category, category_id, tag, size, min_price, max_price,
// featured and in_stock from query values. Unparseable values are ignored.
func ParseFilter(v url.Values) Filter {
	f := Filter{
		Q:          strings.TrimSpace(v.Get("q")),
		Category:   strings.TrimSpace(v.Get("category")),
		CategoryID: cast.ToInt64(v.Get("category_id")),
		Tag:        strings.TrimSpace(v.Get("tag")),
		Size:       strings.TrimSpace(v.Get("size")),
		InStock:    cast.ToBool(v.Get("in_stock")),
	}
	if d, err := decimal.NewFromString(v.Get("min_price")); err == nil {
		f.MinPrice = &d
	}
	if d, err := decimal.NewFromString(v.Get("max_price")); err == nil {
		f.MaxPrice = &d
	}
	if raw := v.Get("featured"); raw != "" {
		if b, err := cast.ToBoolE(raw); err == nil {
			f.Featured = &b
		}
	}
	return f
}

// Apply adds the filter's conditions to a products query
func (f Filter) Apply(db *gorm.DB) *gorm.DB {
	if q := strings.ToLower(strings.TrimSpace(f.Q)); q != "" {
		like := "%" + q + "%"
		db = db.Where("LOWER(products.name) LIKE ? OR LOWER(products.sku) LIKE ? OR LOWER(products.material) LIKE ?", like, like, like)
	}
	if f.Category != "" {
		db = db.Where(`products.category_id IN (
			SELECT id FROM categories WHERE slug = ?
			UNION SELECT id FROM categories WHERE parent_id IN (SELECT id FROM categories WHERE slug = ?))`,
			f.Category, f.Category)
	}
	if f.CategoryID > 0 {
		db = db.Where("products.category_id = ?", f.CategoryID)
	}
	if f.Tag != "" {
		db = db.Where(`products.id IN (
			SELECT pt.product_id FROM product_tags pt JOIN tags t ON t.id = pt.tag_id WHERE LOWER(t.name) = ?)`,
			strings.ToLower(f.Tag))
	}
	if f.Size != "" {
		db = db.Where(`products.id IN (
			SELECT ps.product_id FROM product_sizes ps JOIN sizes s ON s.id = ps.size_id WHERE s.label = ?)`,
			f.Size)
	}
	if f.MinPrice != nil {
		db = db.Where("products.price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		db = db.Where("products.price <= ?", *f.MaxPrice)
	}
	if f.Featured != nil {
		db = db.Where("products.is_featured = ?", *f.Featured)
	}
	if f.InStock {
		db = db.Where("products.stock > 0")
	}
	if len(f.Statuses) > 0 {
		db = db.Where("products.status IN ?", f.Statuses)
	}
	return db
}

func orderedMedia(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func orderedSizes(db *gorm.DB) *gorm.DB {
	return db.Order("sizes.sort ASC, sizes.id ASC")
}

// List returns one page of products matching f together with the total count
func List(ctx context.Context, db *gorm.DB, f Filter, order string, page, pageSize int) ([]domain.Product, int64, error) {
	q := f.Apply(db.WithContext(ctx).Model(&domain.Product{}))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}
	rows := make([]domain.Product, 0)
	err := q.
		Preload("Category").
		Preload("Media", orderedMedia).
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	return rows, total, nil
}

// Load fetches the first product matching where with all of its relations
func Load(ctx context.Context, db *gorm.DB, where string, args ...interface{}) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Preload("Category").
		Preload("Tags").
		Preload("Sizes", orderedSizes).
		Preload("Media", orderedMedia).
		Where(where, args...).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RatingSummary aggregate of published reviews
type RatingSummary struct {
	Average   float64       `json:"average"`
	Count     int64         `json:"count"`
	Histogram map[int]int64 `json:"histogram"`
}

// Ratings computes the published review summary for a product
func Ratings(ctx context.Context, db *gorm.DB, productID int64) (RatingSummary, error) {
	var rows []struct {
		Rating int
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.Review{}).
		Select("rating, COUNT(*) AS n").
		Where("product_id = ? AND status = ?", productID, domain.ReviewPublished).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return RatingSummary{}, errors.Wrap(err, "aggregate ratings")
	}
	sum := RatingSummary{Histogram: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	var total int64
	for _, r := range rows {
		sum.Histogram[r.Rating] += r.N
		sum.Count += r.N
		total += int64(r.Rating) * r.N
	}
	if sum.Count > 0 {
		sum.Average = math.Round(float64(total)/float64(sum.Count)*100) / 100
	}
	return sum, nil
}

// RefreshRating stores the published review average and count on the product
func RefreshRating(ctx context.Context, db *gorm.DB, productID int64) error {
	sum, err := Ratings(ctx, db, productID)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{"avg_rating": sum.Average, "review_count": sum.Count}).Error
}
