package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid     string `yaml:"appid" json:"appid"`
	Location  string `yaml:"location" json:"location"`
	Workdir   string `yaml:"workdir" json:"workdir"`
	Debug     bool   `yaml:"debug" json:"debug"`
	PublicURL string `yaml:"public_url" json:"public_url"` // storefront URL used in emails
}

// WebConfig web server configuration
type WebConfig struct {
	Host        string   `yaml:"host" json:"host"`
	Port        int      `yaml:"port" json:"port"`
	Secret      string   `yaml:"secret" json:"secret"`             // JWT signing secret
	TokenTTL    int      `yaml:"token_ttl" json:"token_ttl"`       // hours
	BodyLimit   string   `yaml:"body_limit" json:"body_limit"`     // e.g. "12M"
	CorsOrigins []string `yaml:"cors_origins" json:"cors_origins"` // empty allows all
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type" json:"type"` // postgres | sqlite
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	SSLMode  string `yaml:"sslmode" json:"sslmode"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// DSN returns the postgres connection string
func (d DBConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Passwd, d.Name, sslmode)
}

// LogConfig logging configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // development | production
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// StorageConfig S3 compatible object storage
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint" json:"endpoint"`
	Region        string `yaml:"region" json:"region"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	AccessKey     string `yaml:"access_key" json:"access_key"`
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	UseSSL        bool   `yaml:"use_ssl" json:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"` // CDN prefix, optional
	MaxUploadMB   int    `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// SmtpConfig outgoing mail
type SmtpConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	User   string `yaml:"user" json:"user"`
	Passwd string `yaml:"passwd" json:"passwd"`
	From   string `yaml:"from" json:"from"`
	TLS    bool   `yaml:"tls" json:"tls"`
}

// PaymentConfig payment gateway credentials
type PaymentConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	KeyID         string `yaml:"key_id" json:"key_id"`
	KeySecret     string `yaml:"key_secret" json:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret" json:"webhook_secret"`
	Currency      string `yaml:"currency" json:"currency"`
}

// SmsConfig HTTP SMS gateway
type SmsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Sender  string `yaml:"sender" json:"sender"`
}

// WhatsAppConfig whatsmeow sender
type WhatsAppConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	CountryCode string `yaml:"country_code" json:"country_code"` // prefixed to 10 digit numbers
}

// ShippingConfig shipment tracking API
type ShippingConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	Email        string `yaml:"email" json:"email"`
	Password     string `yaml:"password" json:"password"`
	PollInterval int    `yaml:"poll_interval" json:"poll_interval"` // seconds
	MaxWorkers   int    `yaml:"max_workers" json:"max_workers"`
}

// OtpConfig one-time password settings
type OtpConfig struct {
	Secret     string `yaml:"secret" json:"secret"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
	Length     int    `yaml:"length" json:"length"`
	Channel    string `yaml:"channel" json:"channel"` // whatsapp | sms
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Smtp     SmtpConfig     `yaml:"smtp" json:"smtp"`
	Payment  PaymentConfig  `yaml:"payment" json:"payment"`
	Sms      SmsConfig      `yaml:"sms" json:"sms"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	Shipping ShippingConfig `yaml:"shipping" json:"shipping"`
	Otp      OtpConfig      `yaml:"otp" json:"otp"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

// InitDirs creates the working directories
func (c *AppConfig) InitDirs() error {
	for _, dir := range []string{c.GetLogDir(), c.GetDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return nil
}

// Validate rejects configurations that are unsafe to run in production
func (c *AppConfig) Validate() error {
	if c.Logger.Mode != "production" {
		return nil
	}
	if c.Web.Secret == "" || c.Web.Secret == defaultSecret {
		return errors.New("web.secret must be set in production")
	}
	if c.Otp.Secret == "" || c.Otp.Secret == defaultSecret {
		return errors.New("otp.secret must be set in production")
	}
	return nil
}

const defaultSecret = "change-me-storefront-secret"

// DefaultAppConfig returns a development configuration
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:     "Storefront",
			Location:  "Asia/Kolkata",
			Workdir:   "/var/storefront",
			PublicURL: "http://localhost:3000",
		},
		Web: WebConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			Secret:    defaultSecret,
			TokenTTL:  72,
			BodyLimit: "12M",
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "storefront",
			User:     "postgres",
			Passwd:   "postgres",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:     "development",
			Filename: "/var/storefront/logs/storefront.log",
		},
		Storage: StorageConfig{
			Region:      "ap-south-1",
			UseSSL:      true,
			MaxUploadMB: 10,
		},
		Smtp: SmtpConfig{
			Port: 587,
			From: "Storefront <no-reply@localhost>",
		},
		Payment: PaymentConfig{
			BaseURL:  "https://api.razorpay.com/v1",
			Currency: "INR",
		},
		WhatsApp: WhatsAppConfig{
			CountryCode: "91",
		},
		Shipping: ShippingConfig{
			BaseURL:      "https://apiv2.shiprocket.in/v1/external",
			PollInterval: 1800,
			MaxWorkers:   8,
		},
		Otp: OtpConfig{
			Secret:     defaultSecret,
			TTLSeconds: 300,
			Length:     6,
			Channel:    "sms",
		},
	}
}

// LoadConfig reads the yaml file at path (optional) and applies environment overrides
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func setString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			*dst = n
		}
	}
}

func setBool(name string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			*dst = b
		}
	}
}

func applyEnv(cfg *AppConfig) {
	setString("STOREFRONT_WORKDIR", &cfg.System.Workdir)
	setString("STOREFRONT_LOCATION", &cfg.System.Location)
	setString("STOREFRONT_PUBLIC_URL", &cfg.System.PublicURL)
	setBool("STOREFRONT_DEBUG", &cfg.System.Debug)

	setString("STOREFRONT_WEB_HOST", &cfg.Web.Host)
	setInt("STOREFRONT_WEB_PORT", &cfg.Web.Port)
	setString("STOREFRONT_WEB_SECRET", &cfg.Web.Secret)
	setInt("STOREFRONT_TOKEN_TTL", &cfg.Web.TokenTTL)

	setString("STOREFRONT_DB_TYPE", &cfg.Database.Type)
	setString("STOREFRONT_DB_HOST", &cfg.Database.Host)
	setInt("STOREFRONT_DB_PORT", &cfg.Database.Port)
	setString("STOREFRONT_DB_NAME", &cfg.Database.Name)
	setString("STOREFRONT_DB_USER", &cfg.Database.User)
	setString("STOREFRONT_DB_PWD", &cfg.Database.Passwd)
	setBool("STOREFRONT_DB_DEBUG", &cfg.Database.Debug)

	setString("STOREFRONT_LOGGER_MODE", &cfg.Logger.Mode)
	setBool("STOREFRONT_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)

	setString("STOREFRONT_S3_ENDPOINT", &cfg.Storage.Endpoint)
	setString("STOREFRONT_S3_REGION", &cfg.Storage.Region)
	setString("STOREFRONT_S3_BUCKET", &cfg.Storage.Bucket)
	setString("STOREFRONT_S3_ACCESS_KEY", &cfg.Storage.AccessKey)
	setString("STOREFRONT_S3_SECRET_KEY", &cfg.Storage.SecretKey)
	setString("STOREFRONT_S3_PUBLIC_BASE_URL", &cfg.Storage.PublicBaseURL)

	setString("STOREFRONT_SMTP_HOST", &cfg.Smtp.Host)
	setInt("STOREFRONT_SMTP_PORT", &cfg.Smtp.Port)
	setString("STOREFRONT_SMTP_USER", &cfg.Smtp.User)
	setString("STOREFRONT_SMTP_PWD", &cfg.Smtp.Passwd)
	setString("STOREFRONT_SMTP_FROM", &cfg.Smtp.From)

	setString("STOREFRONT_PAYMENT_KEY_ID", &cfg.Payment.KeyID)
	setString("STOREFRONT_PAYMENT_KEY_SECRET", &cfg.Payment.KeySecret)
	setString("STOREFRONT_PAYMENT_WEBHOOK_SECRET", &cfg.Payment.WebhookSecret)

	setBool("STOREFRONT_SMS_ENABLED", &cfg.Sms.Enabled)
	setString("STOREFRONT_SMS_URL", &cfg.Sms.BaseURL)
	setString("STOREFRONT_SMS_API_KEY", &cfg.Sms.APIKey)
	setString("STOREFRONT_SMS_SENDER", &cfg.Sms.Sender)

	setBool("STOREFRONT_WHATSAPP_ENABLED", &cfg.WhatsApp.Enabled)

	setString("STOREFRONT_SHIPPING_URL", &cfg.Shipping.BaseURL)
	setString("STOREFRONT_SHIPPING_EMAIL", &cfg.Shipping.Email)
	setString("STOREFRONT_SHIPPING_PWD", &cfg.Shipping.Password)
	setInt("STOREFRONT_SHIPPING_POLL_INTERVAL", &cfg.Shipping.PollInterval)

	setString("STOREFRONT_OTP_SECRET", &cfg.Otp.Secret)
	setString("STOREFRONT_OTP_CHANNEL", &cfg.Otp.Channel)
}
