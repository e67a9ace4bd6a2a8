package orders

import (
	"context"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/inventory"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Get loads an order with items and status history. userID 0 skips the ownership check.
func (s *Service) Get(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	q := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusLogs", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", orderID)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var order domain.Order
	if err := q.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// AttachGatewayOrder stores the payment gateway's order id
func (s *Service) AttachGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error {
	return s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("gateway_order_id", gatewayOrderID).Error
}

// MarkPaid records a captured payment and confirms a pending order.
// Repeated calls for an already paid order are no-ops and report changed=false.
func (s *Service) MarkPaid(ctx context.Context, gatewayOrderID, paymentID string) (order *domain.Order, changed bool, err error) {
	db := s.db.WithContext(ctx)
	var o domain.Order
	if err := db.Where("gateway_order_id = ?", gatewayOrderID).First(&o).Error; err != nil {
		return nil, false, err
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return &o, false, nil
	}
	now := s.now()
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND payment_status <> ?", o.ID, domain.PaymentPaid).
			Updates(map[string]interface{}{
				"payment_status":     domain.PaymentPaid,
				"gateway_payment_id": paymentID,
				"updated_at":         now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "mark paid")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if o.Status != domain.OrderPending {
			return nil
		}
		res = tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", o.ID, domain.OrderPending).
			Update("status", domain.OrderConfirmed)
		if res.Error != nil {
			return errors.Wrap(res.Error, "confirm order")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Create(&domain.OrderStatusLog{
			OrderID:    o.ID,
			FromStatus: domain.OrderPending,
			ToStatus:   domain.OrderConfirmed,
			Source:     domain.SourcePayment,
			Note:       "payment " + paymentID,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.publish(domain.TopicOrderPaid, o.ID)
	}
	fresh, err := s.Get(ctx, o.ID, 0)
	return fresh, changed, err
}

// MarkPaymentFailed flags a pending payment as failed
func (s *Service) MarkPaymentFailed(ctx context.Context, gatewayOrderID string) error {
	return s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("gateway_order_id = ? AND payment_status = ?", gatewayOrderID, domain.PaymentPending).
		Update("payment_status", domain.PaymentFailed).Error
}

// Cancel cancels a pending or confirmed order on behalf of its owner and restocks its items
func (s *Service) Cancel(ctx context.Context, orderID, userID int64, note string) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending && order.Status != domain.OrderConfirmed {
		return nil, ErrNotCancellable
	}
	source := domain.SourceCustomer
	if userID == 0 {
		source = domain.SourceSystem
	}
	if err := s.transition(ctx, order, domain.OrderCancelled, source, note); err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID, 0)
}

// UpdateStatus sets any valid status on behalf of an administrator
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to domain.OrderStatus, note string) (*domain.Order, error) {
	if !to.IsValid() {
		return nil, ErrInvalidStatus
	}
	order, err := s.Get(ctx, orderID, 0)
	if err != nil {
		return nil, err
	}
	if order.Status == to {
		return order, nil
	}
	if err := s.transition(ctx, order, to, domain.SourceAdmin, note); err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID, 0)
}

// transition moves order from its loaded status to `to`. Entering cancelled or
// returned puts the units back in stock and releases the offer usage; leaving
// them takes both back, failing with ErrOutOfStock when the units are gone.
func (s *Service) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, source, note string) error {
	from := order.Status
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Updates(map[string]interface{}{"status": to, "updated_at": now})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order status")
		}
		if res.RowsAffected == 0 {
			return ErrStaleOrder
		}
		switch {
		case inventory.Released(to) && !inventory.Released(from):
			if err := inventory.ReleaseOrder(tx, order.ID, order.OfferID); err != nil {
				return err
			}
		case inventory.Released(from) && !inventory.Released(to):
			if err := inventory.ReclaimOrder(tx, order.ID, order.OfferID); err != nil {
				return err
			}
		}
		return tx.Create(&domain.OrderStatusLog{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   to,
			Source:     source,
			Note:       note,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return err
	}
	s.publish(domain.TopicOrderStatusChanged, domain.OrderStatusEvent{
		OrderID: order.ID,
		From:    from,
		To:      to,
		Source:  source,
	})
	return nil
}

// ShipmentInput courier assignment from the admin panel
type ShipmentInput struct {
	Courier     string
	AWB         string
	TrackingURL string
}

// AssignShipment stores courier details so the tracker starts polling the order
func (s *Service) AssignShipment(ctx context.Context, orderID int64, in ShipmentInput) (*domain.Order, error) {
	res := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"courier":         in.Courier,
			"awb":             in.AWB,
			"tracking_url":    in.TrackingURL,
			"last_tracked_at": nil,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "assign shipment")
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return s.Get(ctx, orderID, 0)
}
