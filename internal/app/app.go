package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/goldleaf/storefront/config"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/mailer"
	"github.com/goldleaf/storefront/internal/notify"
	"github.com/goldleaf/storefront/internal/otp"
	"github.com/goldleaf/storefront/internal/payment"
	"github.com/goldleaf/storefront/internal/shipping"
	"github.com/goldleaf/storefront/internal/sms"
	"github.com/goldleaf/storefront/internal/storage"
	"github.com/goldleaf/storefront/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	configManager *ConfigManager
	bus           EventBus.Bus

	mu          sync.RWMutex
	objectStore storage.ObjectStore
	mail        mailer.Sender
	smsClient   sms.Sender
	textSender  notify.TextSender
	gateway     payment.Gateway
	tracker     shipping.Tracker
	shipSync    *shipping.StatusSyncService
	otpManager  *otp.Manager
	dispatcher  *notify.Dispatcher
}

// Ensure Application implements all interfaces
var (
	_ DBProvider            = (*Application)(nil)
	_ ConfigProvider        = (*Application)(nil)
	_ SettingsProvider      = (*Application)(nil)
	_ SchedulerProvider     = (*Application)(nil)
	_ ConfigManagerProvider = (*Application)(nil)
	_ EventProvider         = (*Application)(nil)
	_ IntegrationProvider   = (*Application)(nil)
	_ AppContext            = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig, bus: EventBus.New()}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		filename := cfg.Logger.Filename
		if filename == "" {
			filename = filepath.Join(cfg.GetLogDir(), "storefront.log")
		}
		rotate := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(rotate),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg)

	if err := cfg.InitDirs(); err != nil {
		zap.S().Warn("failed to create working directories:", err)
	}

	if err := metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.configManager = NewConfigManager(a)
	a.seed()
	a.configManager.Reload()

	a.initIntegrations(cfg)
	a.initEvents()
	a.initJob()
}

func (a *Application) seed() {
	a.checkSuper()
	a.checkSettings()
	a.checkSchedulers()
	a.checkSizes()
}

func (a *Application) initIntegrations(cfg *config.AppConfig) {
	if store, err := storage.NewS3Store(cfg.Storage); err == nil {
		a.objectStore = store
	} else {
		zap.L().Warn("object storage disabled", zap.Error(err))
	}

	if m, err := mailer.NewSMTPMailer(cfg.Smtp); err == nil {
		a.mail = m
	} else {
		a.mail = mailer.LogMailer{}
	}

	a.smsClient = sms.NewClient(cfg.Sms)
	a.textSender = a.smsClient
	a.gateway = payment.NewClient(cfg.Payment)
	a.tracker = shipping.NewShiprocketClient(cfg.Shipping)
	a.rebuildShipSync()

	m, err := otp.NewManager(cfg.Otp.Secret, time.Duration(cfg.Otp.TTLSeconds)*time.Second,
		cfg.Otp.Length, filepath.Join(cfg.GetDataDir(), "otp.db"))
	if err != nil {
		zap.L().Error("otp manager init failed", zap.Error(err))
	} else {
		a.otpManager = m
	}
}

func (a *Application) initEvents() {
	st := a.StoreSettings()
	a.dispatcher = notify.NewDispatcher(a.gormDB, a, a, notify.Options{
		StoreName: st.Name,
		StoreURL:  a.appConfig.System.PublicURL,
		Currency:  st.Currency,
		Enabled: func(channel string) bool {
			return a.GetSettingsBoolValue("notify", channel+"_enabled")
		},
	})
	if err := a.dispatcher.Subscribe(a.bus); err != nil {
		zap.L().Error("notify subscribe failed", zap.Error(err))
	}
	if err := a.bus.SubscribeAsync(domain.TopicOrderCreated, a.recordOrderMetrics, false); err != nil {
		zap.L().Error("metrics subscribe failed", zap.Error(err))
	}
	if err := a.bus.SubscribeAsync(domain.TopicUserRegistered, func(int64) {
		metrics.AddCounter(MetricUsersCreated, 1)
	}, false); err != nil {
		zap.L().Error("metrics subscribe failed", zap.Error(err))
	}
}

func (a *Application) recordOrderMetrics(orderID int64) {
	var order domain.Order
	if err := a.gormDB.Select("id", "total").First(&order, orderID).Error; err != nil {
		return
	}
	total, _ := order.Total.Float64()
	metrics.AddCounter(MetricOrdersCreated, 1)
	metrics.AddCounter(MetricOrderRevenue, total)
}

const (
	MetricOrdersCreated = "orders_created"
	MetricOrderRevenue  = "order_revenue"
	MetricUsersCreated  = "users_registered"
)

func (a *Application) rebuildShipSync() {
	workers := int(a.GetSettingsInt64Value("scheduler", "max_workers"))
	if workers <= 0 {
		workers = a.appConfig.Shipping.MaxWorkers
	}
	a.shipSync = shipping.NewStatusSyncService(shipping.NewGormOrderRepository(a.gormDB), a.tracker, a.bus, workers)
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			if err2, ok := err1.(error); ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	if err := db.Migrator().AutoMigrate(domain.Tables...); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	a.DropAll()
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// SaveSettings stores "category.name" => value pairs
func (a *Application) SaveSettings(settings map[string]interface{}) error {
	return a.configManager.SaveAll(settings)
}

func (a *Application) StoreSettings() StoreSettings {
	return a.configManager.StoreSettings()
}

func (a *Application) ObjectStore() storage.ObjectStore {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.objectStore
}

func (a *Application) Mailer() mailer.Sender {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mail
}

// Send implements mailer.Sender so event handlers always use the current mailer
func (a *Application) Send(to, subject, html string) error {
	m := a.Mailer()
	if m == nil {
		return mailer.ErrNotConfigured
	}
	return m.Send(to, subject, html)
}

func (a *Application) Payment() payment.Gateway {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gateway
}

func (a *Application) Tracker() shipping.Tracker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tracker
}

func (a *Application) OTP() *otp.Manager {
	return a.otpManager
}

func (a *Application) SendText(ctx context.Context, phone, text string) error {
	a.mu.RLock()
	s := a.textSender
	a.mu.RUnlock()
	if s == nil {
		return sms.ErrDisabled
	}
	return s.SendText(ctx, phone, text)
}

// SendOTP delivers a login code. otp.channel "whatsapp" uses the notification
// chain, anything else goes straight to SMS.
func (a *Application) SendOTP(ctx context.Context, phone, text string) error {
	if strings.EqualFold(a.appConfig.Otp.Channel, "whatsapp") {
		return a.SendText(ctx, phone, text)
	}
	s := a.SMS()
	if s == nil {
		return sms.ErrDisabled
	}
	return s.SendText(ctx, phone, text)
}

// SetObjectStore overrides the object store
func (a *Application) SetObjectStore(s storage.ObjectStore) {
	a.mu.Lock()
	a.objectStore = s
	a.mu.Unlock()
}

func (a *Application) SetMailer(m mailer.Sender) {
	a.mu.Lock()
	a.mail = m
	a.mu.Unlock()
}

func (a *Application) SetPayment(g payment.Gateway) {
	a.mu.Lock()
	a.gateway = g
	a.mu.Unlock()
}

func (a *Application) SetTracker(t shipping.Tracker) {
	a.mu.Lock()
	a.tracker = t
	a.mu.Unlock()
	a.rebuildShipSync()
}

// SetTextSender replaces the text channel, e.g. WhatsApp with SMS fallback
func (a *Application) SetTextSender(s notify.TextSender) {
	a.mu.Lock()
	a.textSender = s
	a.mu.Unlock()
}

// SMS returns the SMS gateway client
func (a *Application) SMS() sms.Sender {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.smsClient
}

// SetSMS overrides the SMS client used for login codes
func (a *Application) SetSMS(s sms.Sender) {
	a.mu.Lock()
	a.smsClient = s
	a.mu.Unlock()
}

func (a *Application) SyncShipments(ctx context.Context) (shipping.Summary, error) {
	return a.shipSync.SyncOnce(ctx)
}

// StartBackgroundJobs starts the database scheduler loop
func (a *Application) StartBackgroundJobs(ctx context.Context) {
	a.StartSchedulerService(ctx)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	a.bus.WaitAsync()
	if a.otpManager != nil {
		_ = a.otpManager.Close()
	}
	_ = metrics.Close()
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}
