// Package orders implements the cart, checkout and order lifecycle on top of GORM.
package orders

import (
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/inventory"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOutOfStock         = inventory.ErrOutOfStock
	ErrProductUnavailable = errors.New("product is not available")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrSizeRequired       = errors.New("a size must be selected for this product")
	ErrInvalidSize        = errors.New("size is not offered for this product")
	ErrOfferNotFound      = errors.New("offer code not found")
	ErrCODDisabled        = errors.New("cash on delivery is not available")
	ErrInvalidPayment     = errors.New("unknown payment method")
	ErrNotCancellable     = errors.New("order can no longer be cancelled")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrPaymentMismatch    = errors.New("payment does not belong to this order")
	ErrStaleOrder         = errors.New("order was modified concurrently")
)

// Publisher is satisfied by EventBus.Bus
type Publisher interface {
	Publish(topic string, args ...interface{})
}

type Service struct {
	db       *gorm.DB
	bus      Publisher
	settings app.StoreSettings
	now      func() time.Time
}

func NewService(db *gorm.DB, bus Publisher, settings app.StoreSettings) *Service {
	return &Service{db: db, bus: bus, settings: settings, now: time.Now}
}

// FromApp builds a service over the application's database, bus and settings
func FromApp(a app.AppContext, db *gorm.DB) *Service {
	return NewService(db, a.Bus(), a.StoreSettings())
}

func (s *Service) publish(topic string, args ...interface{}) {
	if s.bus != nil {
		s.bus.Publish(topic, args...)
	}
}
