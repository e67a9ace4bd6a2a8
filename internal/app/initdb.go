package app

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/auth"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	superEmail           = "admin@localhost"
	superDefaultPassword = "storefront"
)

func (a *Application) checkSuper() {
	var admin domain.User
	err := a.gormDB.Where("email = ?", superEmail).First(&admin).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hashed, err := auth.HashPassword(superDefaultPassword)
		if err != nil {
			zap.L().Error("failed to hash default admin password", zap.Error(err))
			return
		}
		email := superEmail
		if err := a.gormDB.Create(&domain.User{
			ID:        common.UUIDint64(),
			Name:      "administrator",
			Email:     &email,
			Password:  hashed,
			Role:      domain.RoleAdmin,
			Status:    common.ENABLED,
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default admin account", zap.String("email", superEmail))
		}
		return
	case err != nil:
		zap.L().Error("failed to query default admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(admin.Password) == ""
	resetRole := admin.Role != domain.RoleAdmin
	resetStatus := !strings.EqualFold(admin.Status, common.ENABLED)
	if !resetPassword && !resetRole && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		hashed, err := auth.HashPassword(superDefaultPassword)
		if err != nil {
			zap.L().Error("failed to hash default admin password", zap.Error(err))
			return
		}
		updates["password"] = hashed
	}
	if resetRole {
		updates["role"] = domain.RoleAdmin
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}
	if err := a.gormDB.Model(&domain.User{}).Where("id = ?", admin.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair default admin account", zap.Error(err))
		return
	}
	zap.L().Warn("repaired default admin account",
		zap.String("email", superEmail),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("roleReset", resetRole),
		zap.Bool("statusEnabled", resetStatus))
}

func (a *Application) checkSettings() {
	var schemasData ConfigSchemasJSON
	if err := json.Unmarshal(configSchemasData, &schemasData); err != nil {
		zap.L().Error("failed to load config schemas from JSON", zap.Error(err))
		return
	}

	for sortid, schema := range schemasData.Schemas {
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}
		category, name := parts[0], parts[1]

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)
		if count > 0 {
			continue
		}
		a.gormDB.Create(&domain.SysConfig{
			ID:     common.UUIDint64(),
			Sort:   sortid,
			Type:   category,
			Name:   name,
			Value:  schema.Default,
			Remark: schema.Description,
		})
		zap.L().Info("initialized config",
			zap.String("key", schema.Key),
			zap.String("default", schema.Default))
	}
}

// checkSchedulers initializes default scheduled tasks
func (a *Application) checkSchedulers() {
	pollInterval := a.appConfig.Shipping.PollInterval
	if pollInterval <= 0 {
		pollInterval = 1800
	}
	defaultSchedulers := []domain.Scheduler{
		{
			Name:     "Shipment Status Sync",
			TaskType: domain.TaskShipmentSync,
			Interval: pollInterval,
			Status:   common.ENABLED,
			Remark:   "Polls the tracking API for open orders with an AWB",
		},
		{
			Name:     "Stale Cart Cleanup",
			TaskType: domain.TaskCartCleanup,
			Interval: 3600,
			Status:   common.ENABLED,
			Remark:   "Removes cart lines older than store.cart_ttl_days",
		},
		{
			Name:     "Offer Expiry",
			TaskType: domain.TaskOfferExpiry,
			Interval: 3600,
			Status:   common.ENABLED,
			Remark:   "Marks offers past their end date as expired",
		},
	}

	for _, sched := range defaultSchedulers {
		var count int64
		a.gormDB.Model(&domain.Scheduler{}).
			Where("task_type = ?", sched.TaskType).
			Count(&count)
		if count > 0 {
			continue
		}
		sched.ID = common.UUIDint64()
		sched.NextRunAt = time.Now().Add(time.Duration(sched.Interval) * time.Second)
		if err := a.gormDB.Create(&sched).Error; err != nil {
			zap.L().Error("failed to create default scheduler",
				zap.String("name", sched.Name),
				zap.Error(err))
		} else {
			zap.L().Info("initialized default scheduler",
				zap.String("name", sched.Name),
				zap.String("task_type", sched.TaskType))
		}
	}
}

// checkSizes seeds common ring sizes and chain lengths
func (a *Application) checkSizes() {
	var count int64
	a.gormDB.Model(&domain.Size{}).Count(&count)
	if count > 0 {
		return
	}
	labels := []string{"6", "7", "8", "9", "10", "11", "12", "14", "16", "18 in", "20 in", "22 in"}
	for i, label := range labels {
		if err := a.gormDB.Create(&domain.Size{Label: label, Sort: i}).Error; err != nil {
			zap.L().Error("failed to create default size", zap.String("label", label), zap.Error(err))
		}
	}
}
