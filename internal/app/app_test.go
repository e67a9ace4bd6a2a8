package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/goldleaf/storefront/internal/apptest"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSeedsDefaults(t *testing.T) {
	a := apptest.New(t)
	db := a.DB()

	var admin domain.User
	require.NoError(t, db.Where("email = ?", "admin@localhost").First(&admin).Error)
	assert.True(t, admin.IsAdmin())
	assert.NotEmpty(t, admin.Password)

	var scheds []domain.Scheduler
	require.NoError(t, db.Order("task_type").Find(&scheds).Error)
	require.Len(t, scheds, 3)
	assert.Equal(t, domain.TaskCartCleanup, scheds[0].TaskType)
	assert.Equal(t, domain.TaskOfferExpiry, scheds[1].TaskType)
	assert.Equal(t, domain.TaskShipmentSync, scheds[2].TaskType)
	assert.Equal(t, 1800, scheds[2].Interval)

	var sizes int64
	db.Model(&domain.Size{}).Count(&sizes)
	assert.Greater(t, sizes, int64(0))

	var settings int64
	db.Model(&domain.SysConfig{}).Count(&settings)
	assert.Equal(t, int64(len(a.ConfigMgr().All())), settings)
}

func TestSettings(t *testing.T) {
	a := apptest.New(t)

	st := a.StoreSettings()
	assert.Equal(t, "INR", st.Currency)
	assert.True(t, st.ShippingFee.Equal(decimal.NewFromInt(99)))
	assert.True(t, st.FreeShippingThreshold.Equal(decimal.NewFromInt(2999)))
	assert.Equal(t, 30, st.CartTTLDays)
	assert.True(t, st.CODEnabled)

	require.NoError(t, a.SaveSettings(map[string]interface{}{
		"store.shipping_fee": "49.50",
		"store.cod_enabled":  false,
	}))
	st = a.StoreSettings()
	assert.Equal(t, "49.5", st.ShippingFee.String())
	assert.False(t, st.CODEnabled)

	a.ConfigMgr().Reload()
	assert.Equal(t, "49.50", a.GetSettingsStringValue("store", "shipping_fee"))

	err := a.SaveSettings(map[string]interface{}{"store.unknown": "x"})
	assert.Error(t, err)
}

func TestShippingFor(t *testing.T) {
	a := apptest.New(t)
	st := a.StoreSettings()
	assert.True(t, st.ShippingFor(decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(99)))
	assert.True(t, st.ShippingFor(decimal.NewFromInt(2999)).IsZero())

	st.FreeShippingThreshold = decimal.Zero
	assert.True(t, st.ShippingFor(decimal.NewFromInt(50000)).Equal(decimal.NewFromInt(99)))
}

func TestCleanupCarts(t *testing.T) {
	a := apptest.New(t)
	db := a.DB()
	now := time.Now()

	require.NoError(t, db.Create(&domain.CartItem{UserID: 1, ProductID: 1, Quantity: 1}).Error)
	stale := domain.CartItem{UserID: 1, ProductID: 2, Quantity: 1}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&stale).UpdateColumn("updated_at", now.AddDate(0, 0, -31)).Error)

	n, err := a.CleanupCarts(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left int64
	db.Model(&domain.CartItem{}).Count(&left)
	assert.Equal(t, int64(1), left)
}

func TestExpireOffers(t *testing.T) {
	a := apptest.New(t)
	db := a.DB()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, db.Create(&domain.Offer{Code: "OLD", Type: domain.OfferFixed, Value: decimal.NewFromInt(10), EndsAt: &past, Status: domain.OfferActive}).Error)
	require.NoError(t, db.Create(&domain.Offer{Code: "NEW", Type: domain.OfferFixed, Value: decimal.NewFromInt(10), EndsAt: &future, Status: domain.OfferActive}).Error)
	require.NoError(t, db.Create(&domain.Offer{Code: "OPEN", Type: domain.OfferFixed, Value: decimal.NewFromInt(10), Status: domain.OfferActive}).Error)

	n, err := a.ExpireOffers(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var old domain.Offer
	require.NoError(t, db.Where("code = ?", "OLD").First(&old).Error)
	assert.Equal(t, domain.OfferExpired, old.Status)
}

func TestRunSchedulerNowShipmentSync(t *testing.T) {
	a := apptest.New(t)
	db := a.DB()

	tracker := &apptest.Tracker{}
	tracker.Set("AWB100", "IN TRANSIT")
	a.SetTracker(tracker)

	order := domain.Order{
		ID: common.UUIDint64(), OrderNo: "GLTEST1", UserID: 1,
		Status: domain.OrderProcessing, AWB: "AWB100",
	}
	require.NoError(t, db.Create(&order).Error)

	var sched domain.Scheduler
	require.NoError(t, db.Where("task_type = ?", domain.TaskShipmentSync).First(&sched).Error)
	require.NoError(t, a.RunSchedulerNow(sched.ID))
	a.Bus().WaitAsync()

	var got domain.Order
	require.NoError(t, db.First(&got, order.ID).Error)
	assert.Equal(t, domain.OrderShipped, got.Status)
	assert.Equal(t, "IN TRANSIT", got.ShipmentStatus)

	require.NoError(t, db.First(&sched, sched.ID).Error)
	assert.Equal(t, "success", sched.LastResult)
	assert.Contains(t, sched.LastMessage, "updated=1")

	var logs []domain.OrderStatusLog
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.SourceTracker, logs[0].Source)
}

func TestRunSchedulerNowUnknownTask(t *testing.T) {
	a := apptest.New(t)
	sched := domain.Scheduler{ID: common.UUIDint64(), Name: "bogus", TaskType: "bogus", Interval: 60, Status: common.ENABLED}
	require.NoError(t, a.DB().Create(&sched).Error)

	assert.Error(t, a.RunSchedulerNow(sched.ID))
	var got domain.Scheduler
	require.NoError(t, a.DB().First(&got, sched.ID).Error)
	assert.Equal(t, "failed", got.LastResult)
}

func TestRunDueSchedulers(t *testing.T) {
	a := apptest.New(t)
	db := a.DB()
	require.NoError(t, db.Model(&domain.Scheduler{}).Where("1 = 1").Update("status", common.DISABLED).Error)

	due := []domain.Scheduler{
		{ID: common.UUIDint64(), Name: "carts", TaskType: domain.TaskCartCleanup, Interval: 600, Status: common.ENABLED},
		{ID: common.UUIDint64(), Name: "offers", TaskType: domain.TaskOfferExpiry, Interval: 600, Status: common.ENABLED},
	}
	later := domain.Scheduler{ID: common.UUIDint64(), Name: "later", TaskType: domain.TaskCartCleanup,
		Interval: 600, Status: common.ENABLED, NextRunAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(&due).Error)
	require.NoError(t, db.Create(&later).Error)

	assert.Equal(t, 2, a.RunDueSchedulers(context.Background()))
	for _, s := range due {
		var got domain.Scheduler
		require.NoError(t, db.First(&got, s.ID).Error)
		assert.Equal(t, "success", got.LastResult, got.Name)
		assert.True(t, got.NextRunAt.After(time.Now()), got.Name)
	}
	var got domain.Scheduler
	require.NoError(t, db.First(&got, later.ID).Error)
	assert.Empty(t, got.LastResult)

	// nothing is due until the interval passes
	assert.Zero(t, a.RunDueSchedulers(context.Background()))
}

func TestSendOTPFollowsChannel(t *testing.T) {
	a := apptest.New(t)
	texts := &apptest.Texts{}
	smsFake := &apptest.Texts{}
	a.SetTextSender(texts)
	a.SetSMS(smsFake)
	ctx := context.Background()

	a.Config().Otp.Channel = "sms"
	require.NoError(t, a.SendOTP(ctx, "9811122233", "123456 is your code"))
	assert.Equal(t, "123456 is your code", smsFake.Last("9811122233"))
	assert.Empty(t, texts.Last("9811122233"))

	a.Config().Otp.Channel = "WhatsApp"
	require.NoError(t, a.SendOTP(ctx, "9811122233", "654321 is your code"))
	assert.Equal(t, "654321 is your code", texts.Last("9811122233"))
	assert.Equal(t, "123456 is your code", smsFake.Last("9811122233"))

	// notifications always take the text chain
	require.NoError(t, a.SendText(ctx, "9811122244", "shipped"))
	assert.Equal(t, "shipped", texts.Last("9811122244"))
}
