package adminapi

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/metrics"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// DatabaseInfo describes the connected database server
type DatabaseInfo struct {
	Type     string `json:"type"`
	Version  string `json:"version"`
	Name     string `json:"name"`
	Size     string `json:"size"`
	Encoding string `json:"encoding,omitempty"`
}

// HostInfo machine and process resource usage
type HostInfo struct {
	Hostname       string  `json:"hostname"`
	OS             string  `json:"os"`
	Platform       string  `json:"platform"`
	Uptime         uint64  `json:"uptime"`
	CPUCores       int     `json:"cpu_cores"`
	MemTotalMB     uint64  `json:"mem_total_mb"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskTotalMB    uint64  `json:"disk_total_mb"`
	DiskUsedPct    float64 `json:"disk_used_percent"`
	Goroutines     int     `json:"goroutines"`
	ProcessCPU     float64 `json:"process_cpu"`
	ProcessMemMB   int64   `json:"process_mem_mb"`
}

type SystemInfo struct {
	ServerTime string       `json:"server_time"`
	Database   DatabaseInfo `json:"database"`
	Host       HostInfo     `json:"host"`
}

type tableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

func registerSystemRoutes() {
	webserver.AdminGET("/system/info", getSystemInfo)
	webserver.AdminGET("/system/tables", getTableCounts)
	webserver.AdminGET("/system/oprlogs", listOprLogs)
}

func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
}

func databaseInfo(db *gorm.DB) DatabaseInfo {
	info := DatabaseInfo{Type: db.Dialector.Name()}
	switch info.Type {
	case "postgres":
		db.Raw("SELECT version()").Scan(&info.Version)
		db.Raw("SELECT current_database()").Scan(&info.Name)
		db.Raw("SELECT pg_size_pretty(pg_database_size(current_database()))").Scan(&info.Size)
		db.Raw("SELECT pg_encoding_to_char(encoding) FROM pg_database WHERE datname = current_database()").Scan(&info.Encoding)
	case "sqlite":
		var version string
		db.Raw("SELECT sqlite_version()").Scan(&version)
		info.Version = "SQLite " + version
		info.Name = "SQLite Database"
		var pageCount, pageSize int64
		db.Raw("PRAGMA page_count").Scan(&pageCount)
		db.Raw("PRAGMA page_size").Scan(&pageSize)
		info.Size = humanSize(pageCount * pageSize)
		db.Raw("PRAGMA encoding").Scan(&info.Encoding)
	}
	return info
}

func hostInfo(c echo.Context) HostInfo {
	ctx := c.Request().Context()
	info := HostInfo{
		OS:           runtime.GOOS,
		Goroutines:   runtime.NumGoroutine(),
		ProcessCPU:   float64(metrics.GetGauge(app.MetricProcessCPU)) / 100,
		ProcessMemMB: metrics.GetGauge(app.MetricProcessMem),
	}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
		info.Uptime = h.Uptime
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemTotalMB = vm.Total / 1024 / 1024
		info.MemUsedPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, GetAppContext(c).Config().System.Workdir); err == nil {
		info.DiskTotalMB = du.Total / 1024 / 1024
		info.DiskUsedPct = du.UsedPercent
	}
	return info
}

func getSystemInfo(c echo.Context) error {
	return ok(c, SystemInfo{
		ServerTime: time.Now().Format(time.DateTime),
		Database:   databaseInfo(GetDB(c)),
		Host:       hostInfo(c),
	})
}

// getTableCounts row counts for every application table
func getTableCounts(c echo.Context) error {
	db := GetDB(c)
	out := make([]tableCount, 0, len(domain.Tables))
	for _, model := range domain.Tables {
		table := model.(interface{ TableName() string }).TableName()
		var n int64
		if err := db.Model(model).Count(&n).Error; err != nil {
			return webserver.FailDB(c, err, "Table")
		}
		out = append(out, tableCount{Table: table, Rows: n})
	}
	return ok(c, out)
}

func listOprLogs(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.SysOprLog{})
	if uid := c.QueryParam("opr_id"); uid != "" {
		query = query.Where("opr_id = ?", cast.ToInt64(uid))
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		query = webserver.ILike(query, "opt_action", q)
	}
	var total int64
	query.Count(&total)
	var rows []domain.SysOprLog
	err := query.Order("opt_time DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Operation log")
	}
	return paged(c, rows, total, page, pageSize)
}
