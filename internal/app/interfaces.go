package app

import (
	"context"

	"github.com/asaskevich/EventBus"
	"github.com/goldleaf/storefront/config"
	"github.com/goldleaf/storefront/internal/mailer"
	"github.com/goldleaf/storefront/internal/otp"
	"github.com/goldleaf/storefront/internal/payment"
	"github.com/goldleaf/storefront/internal/shipping"
	"github.com/goldleaf/storefront/internal/storage"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides runtime store settings access
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	GetSettingsInt64Value(category, key string) int64
	GetSettingsBoolValue(category, key string) bool
	SaveSettings(settings map[string]interface{}) error
	StoreSettings() StoreSettings
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ConfigManagerProvider provides configuration manager access
type ConfigManagerProvider interface {
	ConfigMgr() *ConfigManager
}

// EventProvider provides the in-process event bus
type EventProvider interface {
	Bus() EventBus.Bus
}

// IntegrationProvider provides the third-party integrations
type IntegrationProvider interface {
	ObjectStore() storage.ObjectStore
	Mailer() mailer.Sender
	Payment() payment.Gateway
	Tracker() shipping.Tracker
	OTP() *otp.Manager
	// SendText delivers a notification through the configured chain (WhatsApp, SMS)
	SendText(ctx context.Context, phone, text string) error
	// SendOTP delivers a login code on the otp.channel
	SendOTP(ctx context.Context, phone, text string) error
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	ConfigManagerProvider
	EventProvider
	IntegrationProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// RunSchedulerNow triggers a scheduler execution immediately by ID
	RunSchedulerNow(id int64) error
	// SyncShipments runs one shipment tracking pass
	SyncShipments(ctx context.Context) (shipping.Summary, error)
}
