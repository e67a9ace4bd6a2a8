package orders

import (
	"context"
	"strconv"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/inventory"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote priced cart including discount and shipping
type Quote struct {
	Lines       []CartLine      `json:"lines"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Total       decimal.Decimal `json:"total"`
	OfferCode   string          `json:"offer_code,omitempty"`
	FreeUnits   int             `json:"free_units,omitempty"`

	offer *domain.Offer
}

func toOfferLines(lines []CartLine) []offers.Line {
	out := make([]offers.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, offers.Line{
			ProductID:  l.ProductID,
			CategoryID: l.CategoryID,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.Quantity,
		})
	}
	return out
}

func activeProducts(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", domain.ProductActive)
}

// FindOffer loads an offer by code with its eligibility sets
func (s *Service) FindOffer(ctx context.Context, code string) (*domain.Offer, error) {
	var offer domain.Offer
	err := s.db.WithContext(ctx).
		Preload("Products").
		Preload("Categories").
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load offer")
	}
	return &offer, nil
}

// OfferUses counts the user's orders placed with offerID that still hold the offer
func (s *Service) OfferUses(ctx context.Context, userID, offerID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("user_id = ? AND offer_id = ? AND status NOT IN ?", userID, offerID,
			[]domain.OrderStatus{domain.OrderCancelled, domain.OrderReturned}).
		Count(&n).Error
	return n, err
}

// Quote prices the user's cart, applying offerCode when given
func (s *Service) Quote(ctx context.Context, userID int64, offerCode string) (*Quote, error) {
	lines, err := s.Cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	q := &Quote{
		Lines:    lines,
		Subtotal: offers.Subtotal(toOfferLines(lines)),
		Discount: decimal.Zero,
	}
	if strings.TrimSpace(offerCode) != "" {
		offer, err := s.FindOffer(ctx, offerCode)
		if err != nil {
			return nil, err
		}
		uses, err := s.OfferUses(ctx, userID, offer.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count offer uses")
		}
		res, err := offers.Evaluate(offer, toOfferLines(lines), s.now(), uses)
		if err != nil {
			return nil, err
		}
		q.Discount = res.Discount
		q.FreeUnits = res.FreeUnits
		q.OfferCode = offer.Code
		q.offer = offer
	}
	q.ShippingFee = s.settings.ShippingFor(q.Subtotal.Sub(q.Discount))
	q.Total = q.Subtotal.Sub(q.Discount).Add(q.ShippingFee)
	return q, nil
}

// CheckoutInput everything needed to place an order from the cart
type CheckoutInput struct {
	UserID        int64
	Address       domain.Address
	PaymentMethod string
	OfferCode     string
	Notes         string
}

// NewOrderNo derives a unique, customer friendly order number from a snowflake id
func NewOrderNo(id int64) string {
	return "GL" + strings.ToUpper(strconv.FormatInt(id, 36))
}

// PlaceOrder converts the cart into an order inside one transaction.
// Stock is decremented only while enough units remain, the offer usage counter only
// while under its limit; either failing rolls the whole order back.
func (s *Service) PlaceOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	switch in.PaymentMethod {
	case domain.PaymentMethodCOD:
		if !s.settings.CODEnabled {
			return nil, ErrCODDisabled
		}
	case domain.PaymentMethodOnline:
	default:
		return nil, ErrInvalidPayment
	}

	q, err := s.Quote(ctx, in.UserID, in.OfferCode)
	if err != nil {
		return nil, err
	}
	for _, l := range q.Lines {
		if !l.Available {
			return nil, errors.Wrap(ErrOutOfStock, l.Name)
		}
	}

	status := domain.OrderPending
	if in.PaymentMethod == domain.PaymentMethodCOD {
		status = domain.OrderConfirmed
	}
	id := common.UUIDint64()
	now := s.now()
	order := &domain.Order{
		ID:            id,
		OrderNo:       NewOrderNo(id),
		UserID:        in.UserID,
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		PaymentMethod: in.PaymentMethod,
		Subtotal:      q.Subtotal,
		Discount:      q.Discount,
		ShippingFee:   q.ShippingFee,
		Total:         q.Total,
		OfferCode:     q.OfferCode,
		ShipName:      in.Address.Name,
		ShipPhone:     in.Address.Phone,
		ShipLine1:     in.Address.Line1,
		ShipLine2:     in.Address.Line2,
		ShipCity:      in.Address.City,
		ShipState:     in.Address.State,
		ShipPincode:   in.Address.Pincode,
		ShipCountry:   in.Address.Country,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if q.offer != nil {
		order.OfferID = &q.offer.ID
	}
	for _, l := range q.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			SizeLabel: l.SizeLabel,
			ImageURL:  l.ImageURL,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		})
	}
	order.StatusLogs = []domain.OrderStatusLog{{
		ToStatus: status,
		Source:   domain.SourceCustomer,
		Note:     "order placed (" + in.PaymentMethod + ")",
	}}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines := make([]inventory.Line, 0, len(q.Lines))
		for _, l := range q.Lines {
			lines = append(lines, inventory.Line{ProductID: l.ProductID, Name: l.Name, Quantity: l.Quantity})
		}
		if err := inventory.Reserve(tx, lines, activeProducts); err != nil {
			return err
		}
		if q.offer != nil {
			if err := inventory.ClaimOffer(tx, q.offer.ID); err != nil {
				return err
			}
		}
		if err := tx.Create(order).Error; err != nil {
			return errors.Wrap(err, "create order")
		}
		return tx.Where("user_id = ?", in.UserID).Delete(&domain.CartItem{}).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(domain.TopicOrderCreated, order.ID)
	return order, nil
}
