package inventory

import (
	"fmt"
	"testing"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return db
}

func stockOf(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	var p domain.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func TestReserveIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&domain.Product{ID: 1, SKU: "A", Slug: "a", Price: decimal.NewFromInt(10), Stock: 5}).Error)
	require.NoError(t, db.Create(&domain.Product{ID: 2, SKU: "B", Slug: "b", Price: decimal.NewFromInt(10), Stock: 1}).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(tx, []Line{{ProductID: 1, Quantity: 2}, {ProductID: 2, Name: "Bangle", Quantity: 2}})
	})
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Contains(t, err.Error(), "Bangle")
	assert.Equal(t, 5, stockOf(t, db, 1))

	draft := func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", domain.ProductDraft) }
	err = db.Transaction(func(tx *gorm.DB) error {
		return Reserve(tx, []Line{{ProductID: 1, Quantity: 1}}, draft)
	})
	assert.ErrorIs(t, err, ErrOutOfStock)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return Reserve(tx, []Line{{ProductID: 1, Quantity: 5}})
	}))
	assert.Equal(t, 0, stockOf(t, db, 1))
}

func TestReleaseAndReclaimOrder(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&domain.Product{ID: 1, SKU: "A", Slug: "a", Price: decimal.NewFromInt(10), Stock: 1}).Error)
	offer := domain.Offer{Code: "LIMIT1", Type: domain.OfferFixed, Value: decimal.NewFromInt(5), UsageLimit: 1, UsedCount: 1}
	require.NoError(t, db.Create(&offer).Error)
	require.NoError(t, db.Create(&domain.Order{
		ID: 9, OrderNo: "GL9", UserID: 1, OfferID: &offer.ID,
		Items: []domain.OrderItem{{ProductID: 1, Quantity: 3}},
	}).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return ReleaseOrder(tx, 9, &offer.ID) }))
	assert.Equal(t, 4, stockOf(t, db, 1))
	var o domain.Offer
	require.NoError(t, db.First(&o, offer.ID).Error)
	assert.Zero(t, o.UsedCount)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return ReclaimOrder(tx, 9, &offer.ID) }))
	assert.Equal(t, 1, stockOf(t, db, 1))
	require.NoError(t, db.First(&o, offer.ID).Error)
	assert.EqualValues(t, 1, o.UsedCount)

	// the offer is at its limit again, so a second claim fails and rolls back the stock
	require.NoError(t, db.Model(&domain.Product{}).Where("id = ?", 1).Update("stock", 10).Error)
	err := db.Transaction(func(tx *gorm.DB) error { return ReclaimOrder(tx, 9, &offer.ID) })
	assert.ErrorIs(t, err, offers.ErrUsageExhausted)
	assert.Equal(t, 10, stockOf(t, db, 1))
}

func TestReleased(t *testing.T) {
	assert.True(t, Released(domain.OrderCancelled))
	assert.True(t, Released(domain.OrderReturned))
	assert.False(t, Released(domain.OrderDelivered))
	assert.False(t, Released(domain.OrderPending))
}
