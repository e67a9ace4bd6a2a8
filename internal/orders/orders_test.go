package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
	args   []interface{}
}

func (r *recorder) Publish(topic string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if len(args) > 0 {
		r.args = append(r.args, args[0])
	}
}

var testSettings = app.StoreSettings{
	Name:                  "Goldleaf",
	Currency:              "INR",
	ShippingFee:           decimal.NewFromInt(99),
	FreeShippingThreshold: decimal.NewFromInt(2999),
	CODEnabled:            true,
}

func newService(t *testing.T) (*Service, *gorm.DB, *recorder) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	rec := &recorder{}
	return NewService(db, rec, testSettings), db, rec
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, stock int, sizes ...domain.Size) *domain.Product {
	t.Helper()
	p := &domain.Product{
		SKU: sku, Name: "Item " + sku, Slug: "item-" + sku,
		Price: decimal.NewFromInt(price), Stock: stock, Status: domain.ProductActive,
		Sizes: sizes,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

var addr = domain.Address{Name: "Asha", Phone: "9876543210", Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001", Country: "India"}

func TestAddToCart(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	ring := seedProduct(t, db, "R1", 1500, 3, domain.Size{Label: "7"}, domain.Size{Label: "8"})
	chain := seedProduct(t, db, "C1", 800, 2)

	_, err := s.AddToCart(ctx, 1, ring.ID, 0, 1)
	assert.ErrorIs(t, err, ErrSizeRequired)
	_, err = s.AddToCart(ctx, 1, ring.ID, 9999, 1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	item, err := s.AddToCart(ctx, 1, ring.ID, ring.Sizes[0].ID, 2)
	require.NoError(t, err)
	item2, err := s.AddToCart(ctx, 1, ring.ID, ring.Sizes[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, item.ID, item2.ID)
	assert.Equal(t, 3, item2.Quantity)

	_, err = s.AddToCart(ctx, 1, ring.ID, ring.Sizes[0].ID, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = s.AddToCart(ctx, 1, chain.ID, 55, 1)
	require.NoError(t, err)

	lines, err := s.Cart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "7", lines[0].SizeLabel)
	assert.Equal(t, int64(0), lines[1].SizeID)
	assert.True(t, lines[0].LineTotal.Equal(decimal.NewFromInt(4500)))

	require.NoError(t, s.SetCartQuantity(ctx, 1, lines[1].ID, 0))
	lines, _ = s.Cart(ctx, 1)
	assert.Len(t, lines, 1)

	assert.ErrorIs(t, s.RemoveCartItem(ctx, 2, lines[0].ID), gorm.ErrRecordNotFound)
}

func TestQuoteWithOffer(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "E1", 1000, 10)
	require.NoError(t, db.Create(&domain.Offer{Code: "TEN", Type: domain.OfferPercentage, Value: decimal.NewFromInt(10), Status: domain.OfferActive}).Error)

	_, err := s.Quote(ctx, 1, "")
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = s.AddToCart(ctx, 1, p.ID, 0, 2)
	require.NoError(t, err)

	q, err := s.Quote(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "2099", q.Total.String())

	q, err = s.Quote(ctx, 1, "ten")
	require.NoError(t, err)
	assert.Equal(t, "200", q.Discount.String())
	assert.Equal(t, "99", q.ShippingFee.String())
	assert.Equal(t, "1899", q.Total.String())

	_, err = s.Quote(ctx, 1, "NOPE")
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestPlaceOrder(t *testing.T) {
	s, db, rec := newService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "N1", 2000, 5)
	offer := domain.Offer{Code: "FLAT500", Type: domain.OfferFixed, Value: decimal.NewFromInt(500), UsageLimit: 1, Status: domain.OfferActive}
	require.NoError(t, db.Create(&offer).Error)

	_, err := s.AddToCart(ctx, 1, p.ID, 0, 2)
	require.NoError(t, err)

	order, err := s.PlaceOrder(ctx, CheckoutInput{UserID: 1, Address: addr, PaymentMethod: domain.PaymentMethodCOD, OfferCode: "FLAT500"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.Status)
	assert.Equal(t, "3500", order.Total.String())
	assert.True(t, order.ShippingFee.IsZero())
	assert.Equal(t, "Pune", order.ShipCity)
	require.Len(t, order.Items, 1)
	assert.Equal(t, []string{domain.TopicOrderCreated}, rec.topics)

	var fresh domain.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 3, fresh.Stock)

	var used domain.Offer
	require.NoError(t, db.First(&used, offer.ID).Error)
	assert.Equal(t, int64(1), used.UsedCount)

	lines, err := s.Cart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)

	// usage limit reached for the next customer
	_, err = s.AddToCart(ctx, 2, p.ID, 0, 1)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, CheckoutInput{UserID: 2, Address: addr, PaymentMethod: domain.PaymentMethodCOD, OfferCode: "FLAT500"})
	assert.ErrorIs(t, err, offers.ErrUsageExhausted)
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	a := seedProduct(t, db, "A1", 100, 5)
	b := seedProduct(t, db, "B1", 100, 5)
	_, err := s.AddToCart(ctx, 1, a.ID, 0, 1)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, 1, b.ID, 0, 2)
	require.NoError(t, err)

	// stock dropped after the item was added
	require.NoError(t, db.Model(&domain.Product{}).Where("id = ?", b.ID).Update("stock", 1).Error)

	_, err = s.PlaceOrder(ctx, CheckoutInput{UserID: 1, Address: addr, PaymentMethod: domain.PaymentMethodOnline})
	assert.ErrorIs(t, errors.Cause(err), ErrOutOfStock)

	var fresh domain.Product
	require.NoError(t, db.First(&fresh, a.ID).Error)
	assert.Equal(t, 5, fresh.Stock)
	var count int64
	db.Model(&domain.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestPlaceOrderPaymentMethod(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "P1", 100, 5)
	_, err := s.AddToCart(ctx, 1, p.ID, 0, 1)
	require.NoError(t, err)

	_, err = s.PlaceOrder(ctx, CheckoutInput{UserID: 1, Address: addr, PaymentMethod: "barter"})
	assert.ErrorIs(t, err, ErrInvalidPayment)

	s.settings.CODEnabled = false
	_, err = s.PlaceOrder(ctx, CheckoutInput{UserID: 1, Address: addr, PaymentMethod: domain.PaymentMethodCOD})
	assert.ErrorIs(t, err, ErrCODDisabled)

	order, err := s.PlaceOrder(ctx, CheckoutInput{UserID: 1, Address: addr, PaymentMethod: domain.PaymentMethodOnline})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, "199", order.Total.String())
}

func placeOnline(t *testing.T, s *Service, db *gorm.DB, userID int64) *domain.Order {
	t.Helper()
	p := seedProduct(t, db, fmt.Sprintf("X%d", time.Now().UnixNano()), 500, 4)
	_, err := s.AddToCart(context.Background(), userID, p.ID, 0, 2)
	require.NoError(t, err)
	order, err := s.PlaceOrder(context.Background(), CheckoutInput{UserID: userID, Address: addr, PaymentMethod: domain.PaymentMethodOnline})
	require.NoError(t, err)
	require.NoError(t, s.AttachGatewayOrder(context.Background(), order.ID, "order_gw_"+order.OrderNo))
	return order
}

func TestMarkPaid(t *testing.T) {
	s, db, rec := newService(t)
	ctx := context.Background()
	order := placeOnline(t, s, db, 1)

	paid, changed, err := s.MarkPaid(ctx, "order_gw_"+order.OrderNo, "pay_1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderConfirmed, paid.Status)
	require.Len(t, paid.StatusLogs, 2)
	assert.Equal(t, domain.SourcePayment, paid.StatusLogs[1].Source)

	_, changed, err = s.MarkPaid(ctx, "order_gw_"+order.OrderNo, "pay_1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{domain.TopicOrderCreated, domain.TopicOrderPaid}, rec.topics)

	_, _, err = s.MarkPaid(ctx, "order_unknown", "pay_2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCancel(t *testing.T) {
	s, db, rec := newService(t)
	ctx := context.Background()
	order := placeOnline(t, s, db, 1)

	_, err := s.Cancel(ctx, order.ID, 2, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	cancelled, err := s.Cancel(ctx, order.ID, 1, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)

	var p domain.Product
	require.NoError(t, db.First(&p, order.Items[0].ProductID).Error)
	assert.Equal(t, 4, p.Stock)

	ev := rec.args[len(rec.args)-1].(domain.OrderStatusEvent)
	assert.Equal(t, domain.OrderPending, ev.From)
	assert.Equal(t, domain.OrderCancelled, ev.To)
	assert.Equal(t, domain.SourceCustomer, ev.Source)

	_, err = s.Cancel(ctx, order.ID, 1, "")
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestUpdateStatusAndShipment(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	order := placeOnline(t, s, db, 1)

	_, err := s.UpdateStatus(ctx, order.ID, "lost", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	updated, err := s.UpdateStatus(ctx, order.ID, domain.OrderProcessing, "packed")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, updated.Status)
	assert.Equal(t, domain.SourceAdmin, updated.StatusLogs[len(updated.StatusLogs)-1].Source)

	// no transition validation for administrators
	updated, err = s.UpdateStatus(ctx, order.ID, domain.OrderPending, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, updated.Status)

	shipped, err := s.AssignShipment(ctx, order.ID, ShipmentInput{Courier: "Delhivery", AWB: "AWB9"})
	require.NoError(t, err)
	assert.Equal(t, "AWB9", shipped.AWB)

	_, err = s.AssignShipment(ctx, 424242, ShipmentInput{AWB: "x"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReopenTakesStockBack(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	order := placeOnline(t, s, db, 1)
	productID := order.Items[0].ProductID
	stock := func() int {
		var p domain.Product
		require.NoError(t, db.First(&p, productID).Error)
		return p.Stock
	}

	_, err := s.UpdateStatus(ctx, order.ID, domain.OrderCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stock())

	reopened, err := s.UpdateStatus(ctx, order.ID, domain.OrderConfirmed, "customer called back")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, reopened.Status)
	assert.Equal(t, 2, stock())

	_, err = s.UpdateStatus(ctx, order.ID, domain.OrderReturned, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stock())

	// moving between released statuses leaves stock alone
	_, err = s.UpdateStatus(ctx, order.ID, domain.OrderCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stock())

	require.NoError(t, db.Model(&domain.Product{}).Where("id = ?", productID).Update("stock", 1).Error)
	_, err = s.UpdateStatus(ctx, order.ID, domain.OrderProcessing, "")
	assert.ErrorIs(t, err, ErrOutOfStock)
	got, err := s.Get(ctx, order.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, 1, stock())
}

func TestReturnedOrdersFreeOfferUse(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	offer := domain.Offer{Code: "ONCE", Type: domain.OfferFixed, Value: decimal.NewFromInt(100), PerUserLimit: 1, UsedCount: 1}
	require.NoError(t, db.Create(&offer).Error)
	require.NoError(t, db.Create(&domain.Order{ID: 77, OrderNo: "GL77", UserID: 5, Status: domain.OrderDelivered, OfferID: &offer.ID}).Error)

	uses, err := s.OfferUses(ctx, 5, offer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, uses)

	_, err = s.UpdateStatus(ctx, 77, domain.OrderReturned, "")
	require.NoError(t, err)
	uses, err = s.OfferUses(ctx, 5, offer.ID)
	require.NoError(t, err)
	assert.Zero(t, uses)

	var reloaded domain.Offer
	require.NoError(t, db.First(&reloaded, offer.ID).Error)
	assert.Zero(t, reloaded.UsedCount)
}

func TestNewOrderNo(t *testing.T) {
	assert.Equal(t, "GLZZ", NewOrderNo(36*36-1))
}
