package app

import (
	_ "embed"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

//go:embed config_schemas.json
var configSchemasData []byte

// ConfigSchema describes one sys_config entry and its default value
type ConfigSchema struct {
	Key         string `json:"key"`
	Default     string `json:"default"`
	Description string `json:"description"`
}

type ConfigSchemasJSON struct {
	Schemas []ConfigSchema `json:"schemas"`
}

// StoreSettings typed view over the "store" settings category
type StoreSettings struct {
	Name                  string          `mapstructure:"name" json:"name"`
	Currency              string          `mapstructure:"currency" json:"currency"`
	ShippingFee           decimal.Decimal `mapstructure:"shipping_fee" json:"shipping_fee"`
	FreeShippingThreshold decimal.Decimal `mapstructure:"free_shipping_threshold" json:"free_shipping_threshold"`
	CartTTLDays           int             `mapstructure:"cart_ttl_days" json:"cart_ttl_days"`
	CODEnabled            bool            `mapstructure:"cod_enabled" json:"cod_enabled"`
	SupportEmail          string          `mapstructure:"support_email" json:"support_email"`
}

// ShippingFor returns the shipping fee owed on subtotal
func (s StoreSettings) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if s.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(s.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.ShippingFee
}

var ErrUnknownSetting = errors.New("unknown setting")

// ConfigManager caches sys_config rows keyed by "category.name"
type ConfigManager struct {
	app     DBProvider
	mu      sync.RWMutex
	values  map[string]string
	schemas map[string]ConfigSchema
	order   []string
}

func NewConfigManager(a DBProvider) *ConfigManager {
	cm := &ConfigManager{
		app:     a,
		values:  make(map[string]string),
		schemas: make(map[string]ConfigSchema),
	}
	for _, s := range loadSchemas() {
		cm.schemas[s.Key] = s
		cm.order = append(cm.order, s.Key)
	}
	return cm
}

func loadSchemas() []ConfigSchema {
	var data ConfigSchemasJSON
	if err := json.Unmarshal(configSchemasData, &data); err != nil {
		zap.L().Error("failed to load config schemas from JSON", zap.Error(err))
		return nil
	}
	return data.Schemas
}

// Reload refreshes the cache from the database
func (m *ConfigManager) Reload() {
	var rows []domain.SysConfig
	if err := m.app.DB().Find(&rows).Error; err != nil {
		zap.L().Error("load sys_config failed", zap.Error(err))
		return
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Type+"."+r.Name] = r.Value
	}
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
}

func (m *ConfigManager) lookup(category, name string) string {
	key := category + "." + name
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return v
	}
	return m.schemas[key].Default
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.lookup(category, name)
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.lookup(category, name))
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.lookup(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.lookup(category, name))
}

func (m *ConfigManager) GetDecimal(category, name string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(m.lookup(category, name)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// GetCategory returns every known setting of a category, keyed by name
func (m *ConfigManager) GetCategory(category string) map[string]string {
	out := make(map[string]string)
	prefix := category + "."
	for _, key := range m.order {
		if strings.HasPrefix(key, prefix) {
			name := strings.TrimPrefix(key, prefix)
			out[name] = m.lookup(category, name)
		}
	}
	return out
}

// Setting is a single entry as shown in the admin panel
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Description string `json:"description"`
}

// All returns all settings in schema order
func (m *ConfigManager) All() []Setting {
	out := make([]Setting, 0, len(m.order))
	for _, key := range m.order {
		parts := strings.SplitN(key, ".", 2)
		s := m.schemas[key]
		out = append(out, Setting{
			Key:         key,
			Value:       m.lookup(parts[0], parts[1]),
			Default:     s.Default,
			Description: s.Description,
		})
	}
	return out
}

// Set writes a single value and refreshes the cache entry
func (m *ConfigManager) Set(category, name, value string) error {
	key := category + "." + name
	if _, ok := m.schemas[key]; !ok {
		return errors.Wrap(ErrUnknownSetting, key)
	}
	db := m.app.DB()
	res := db.Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Update("value", value)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update %s", key)
	}
	if res.RowsAffected == 0 {
		if err := db.Create(&domain.SysConfig{
			Sort:   len(m.order),
			Type:   category,
			Name:   name,
			Value:  value,
			Remark: m.schemas[key].Description,
		}).Error; err != nil {
			return errors.Wrapf(err, "create %s", key)
		}
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// SaveAll validates every key first, then writes them
func (m *ConfigManager) SaveAll(settings map[string]interface{}) error {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		if _, ok := m.schemas[key]; !ok {
			return errors.Wrap(ErrUnknownSetting, key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts := strings.SplitN(key, ".", 2)
		if err := m.Set(parts[0], parts[1], cast.ToString(settings[key])); err != nil {
			return err
		}
	}
	return nil
}

func stringToDecimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// StoreSettings decodes the "store" category
func (m *ConfigManager) StoreSettings() StoreSettings {
	var st StoreSettings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToDecimalHook,
		),
		WeaklyTypedInput: true,
		Result:           &st,
	})
	if err != nil {
		zap.L().Error("store settings decoder", zap.Error(err))
		return st
	}
	if err := dec.Decode(m.GetCategory("store")); err != nil {
		zap.L().Warn("store settings decode", zap.Error(err))
	}
	if st.Currency == "" {
		st.Currency = "INR"
	}
	return st
}
