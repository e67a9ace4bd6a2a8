// Package inventory moves product stock and offer usage in step with an order.
// Every function runs on the caller's transaction.
package inventory

import (
	"strconv"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var ErrOutOfStock = errors.New("insufficient stock")

// Line units of one product held by an order or cart
type Line struct {
	ProductID int64
	Name      string
	Quantity  int
}

// Reserve takes the units out of stock. A product without enough stock fails
// the whole call with ErrOutOfStock. Extra scopes narrow the product match.
func Reserve(tx *gorm.DB, lines []Line, scopes ...func(*gorm.DB) *gorm.DB) error {
	for _, l := range lines {
		res := tx.Model(&domain.Product{}).
			Scopes(scopes...).
			Where("id = ? AND stock >= ?", l.ProductID, l.Quantity).
			Update("stock", gorm.Expr("stock - ?", l.Quantity))
		if res.Error != nil {
			return errors.Wrap(res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			name := l.Name
			if name == "" {
				name = strconv.FormatInt(l.ProductID, 10)
			}
			return errors.Wrap(ErrOutOfStock, name)
		}
	}
	return nil
}

// Restock puts the units back
func Restock(tx *gorm.DB, lines []Line) error {
	for _, l := range lines {
		if err := tx.Model(&domain.Product{}).Where("id = ?", l.ProductID).
			Update("stock", gorm.Expr("stock + ?", l.Quantity)).Error; err != nil {
			return errors.Wrap(err, "restock")
		}
	}
	return nil
}

// ClaimOffer counts one use of the offer, respecting its usage limit
func ClaimOffer(tx *gorm.DB, offerID int64) error {
	res := tx.Model(&domain.Offer{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", offerID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return errors.Wrap(res.Error, "increment offer usage")
	}
	if res.RowsAffected == 0 {
		return offers.ErrUsageExhausted
	}
	return nil
}

func ReleaseOffer(tx *gorm.DB, offerID int64) error {
	return errors.Wrap(tx.Model(&domain.Offer{}).Where("id = ? AND used_count > 0", offerID).
		Update("used_count", gorm.Expr("used_count - 1")).Error, "release offer usage")
}

func orderLines(tx *gorm.DB, orderID int64) ([]Line, error) {
	var items []domain.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "load order items")
	}
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity})
	}
	return lines, nil
}

// ReleaseOrder restocks an order's items and gives back its offer use
func ReleaseOrder(tx *gorm.DB, orderID int64, offerID *int64) error {
	lines, err := orderLines(tx, orderID)
	if err != nil {
		return err
	}
	if err := Restock(tx, lines); err != nil {
		return err
	}
	if offerID != nil {
		return ReleaseOffer(tx, *offerID)
	}
	return nil
}

// ReclaimOrder takes stock and the offer use back for a previously released order
func ReclaimOrder(tx *gorm.DB, orderID int64, offerID *int64) error {
	lines, err := orderLines(tx, orderID)
	if err != nil {
		return err
	}
	if err := Reserve(tx, lines); err != nil {
		return err
	}
	if offerID != nil {
		return ClaimOffer(tx, *offerID)
	}
	return nil
}

// Released reports whether an order in status s no longer holds stock
func Released(s domain.OrderStatus) bool {
	return s == domain.OrderCancelled || s == domain.OrderReturned
}
