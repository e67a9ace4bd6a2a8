package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/goldleaf/storefront/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(sqlitePath(cfg.Name, workdir))
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		zap.S().Fatalf("open %s database: %v", cfg.Type, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		zap.S().Fatalf("database handle: %v", err)
	}
	if cfg.Type == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db
}

// sqlitePath resolves relative database names under the data directory
func sqlitePath(name, workdir string) string {
	if name == "" {
		name = "storefront.db"
	}
	if strings.HasPrefix(name, "file:") || filepath.IsAbs(name) {
		return name
	}
	if !strings.HasSuffix(name, ".db") {
		name += ".db"
	}
	return filepath.Join(workdir, "data", name)
}
