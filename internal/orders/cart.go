package orders

import (
	"context"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartLine cart item priced from the current catalog
type CartLine struct {
	ID         int64           `json:"id,string"`
	ProductID  int64           `json:"product_id,string"`
	SizeID     int64           `json:"size_id,string"`
	SizeLabel  string          `json:"size_label,omitempty"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	ImageURL   string          `json:"image_url"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Stock      int             `json:"stock"`
	Available  bool            `json:"available"`
	CategoryID int64           `json:"-"`
}

// Cart returns the user's cart lines, oldest first
func (s *Service) Cart(ctx context.Context, userID int64) ([]CartLine, error) {
	var items []domain.CartItem
	err := s.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	sizeIDs := make([]int64, 0)
	for _, it := range items {
		if it.SizeID != 0 {
			sizeIDs = append(sizeIDs, it.SizeID)
		}
	}
	labels := map[int64]string{}
	if len(sizeIDs) > 0 {
		var sizes []domain.Size
		if err := s.db.WithContext(ctx).Where("id IN ?", sizeIDs).Find(&sizes).Error; err != nil {
			return nil, errors.Wrap(err, "load sizes")
		}
		for _, sz := range sizes {
			labels[sz.ID] = sz.Label
		}
	}

	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		p := it.Product
		if p == nil {
			continue
		}
		line := CartLine{
			ID:        it.ID,
			ProductID: p.ID,
			SizeID:    it.SizeID,
			SizeLabel: labels[it.SizeID],
			SKU:       p.SKU,
			Name:      p.Name,
			Slug:      p.Slug,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			LineTotal: p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			Stock:     p.Stock,
			Available: p.Status == domain.ProductActive && p.Stock >= it.Quantity,
		}
		if p.CategoryID != nil {
			line.CategoryID = *p.CategoryID
		}
		for _, m := range p.Media {
			if m.Kind == "image" {
				line.ImageURL = m.URL
				break
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// AddToCart adds qty units or increments an existing line
func (s *Service) AddToCart(ctx context.Context, userID, productID, sizeID int64, qty int) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	db := s.db.WithContext(ctx)
	var p domain.Product
	if err := db.Preload("Sizes").First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, errors.Wrap(err, "load product")
	}
	if p.Status != domain.ProductActive {
		return nil, ErrProductUnavailable
	}
	if len(p.Sizes) == 0 {
		sizeID = 0
	} else {
		if sizeID == 0 {
			return nil, ErrSizeRequired
		}
		found := false
		for _, sz := range p.Sizes {
			if sz.ID == sizeID {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrInvalidSize
		}
	}

	var item domain.CartItem
	err := db.Where("user_id = ? AND product_id = ? AND size_id = ?", userID, productID, sizeID).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if qty > p.Stock {
			return nil, ErrOutOfStock
		}
		item = domain.CartItem{UserID: userID, ProductID: productID, SizeID: sizeID, Quantity: qty}
		if err := db.Create(&item).Error; err != nil {
			return nil, errors.Wrap(err, "create cart item")
		}
	case err != nil:
		return nil, errors.Wrap(err, "load cart item")
	default:
		if item.Quantity+qty > p.Stock {
			return nil, ErrOutOfStock
		}
		item.Quantity += qty
		if err := db.Model(&item).Update("quantity", item.Quantity).Error; err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
	}
	return &item, nil
}

// SetCartQuantity sets a line's quantity; zero removes it
func (s *Service) SetCartQuantity(ctx context.Context, userID, itemID int64, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveCartItem(ctx, userID, itemID)
	}
	db := s.db.WithContext(ctx)
	var item domain.CartItem
	if err := db.Preload("Product").Where("id = ? AND user_id = ?", itemID, userID).First(&item).Error; err != nil {
		return err
	}
	if item.Product == nil || item.Product.Status != domain.ProductActive {
		return ErrProductUnavailable
	}
	if qty > item.Product.Stock {
		return ErrOutOfStock
	}
	return db.Model(&item).Update("quantity", qty).Error
}

func (s *Service) RemoveCartItem(ctx context.Context, userID, itemID int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", itemID, userID).Delete(&domain.CartItem{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete cart item")
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.CartItem{}).Error
}
