package shipping

import (
	"context"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/inventory"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrStaleOrder the order status changed between load and update
var ErrStaleOrder = errors.New("order status changed concurrently")

// OrderRepository data access used by the status sync
type OrderRepository interface {
	// ListTrackable returns open orders that have an AWB, least recently tracked first
	ListTrackable(ctx context.Context, limit int) ([]*domain.Order, error)

	// ApplyStatus moves the order from its loaded status to `to` and writes the status log.
	// Cancelled and returned orders give their stock and offer use back.
	ApplyStatus(ctx context.Context, order *domain.Order, to domain.OrderStatus, raw, note string) error

	// TouchTracked stores the raw courier status without changing the order status
	TouchTracked(ctx context.Context, orderID int64, raw string, at time.Time) error
}

// GormOrderRepository is the GORM implementation of OrderRepository
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) ListTrackable(ctx context.Context, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	q := r.db.WithContext(ctx).
		Where("status IN ?", domain.OpenOrderStatuses).
		Where("awb <> ''").
		Order("last_tracked_at IS NOT NULL, last_tracked_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "list trackable orders")
	}
	return orders, nil
}

func (r *GormOrderRepository) ApplyStatus(ctx context.Context, order *domain.Order, to domain.OrderStatus, raw, note string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(map[string]interface{}{
				"status":          to,
				"shipment_status": raw,
				"last_tracked_at": now,
				"updated_at":      now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order status")
		}
		if res.RowsAffected == 0 {
			return ErrStaleOrder
		}
		if inventory.Released(to) && !inventory.Released(order.Status) {
			if err := inventory.ReleaseOrder(tx, order.ID, order.OfferID); err != nil {
				return err
			}
		}
		return tx.Create(&domain.OrderStatusLog{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   to,
			Source:     domain.SourceTracker,
			Note:       note,
			CreatedAt:  now,
		}).Error
	})
}

func (r *GormOrderRepository) TouchTracked(ctx context.Context, orderID int64, raw string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"shipment_status": raw,
			"last_tracked_at": at,
		}).Error
}
