package app

import (
	"os"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/metrics"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	MetricSystemCPU     = "system_cpuuse"
	MetricSystemMem     = "system_memuse"
	MetricProcessCPU    = "storefront_cpuuse"
	MetricProcessMem    = "storefront_memuse"
	defaultOprlogMaxAge = 365
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	_, err = a.sched.AddFunc("@every 30s", a.SchedResourceSample)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", a.SchedClearOprLog)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@hourly", a.SchedPurgeOTP)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedResourceSample records host and process load as gauges. CPU values
// are stored as percent*100, memory in MB.
func (a *Application) SchedResourceSample() {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("resource sample panic: %v", r)
		}
	}()

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		metrics.SetGauge(MetricSystemCPU, int64(pct[0]*100))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		metrics.SetGauge(MetricSystemMem, toMB(vm.Used))
	}

	self, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec
	if err != nil {
		return
	}
	if pct, err := self.CPUPercent(); err == nil {
		metrics.SetGauge(MetricProcessCPU, int64(pct*100))
	}
	if info, err := self.MemoryInfo(); err == nil {
		metrics.SetGauge(MetricProcessMem, toMB(info.RSS))
	}
}

func toMB(b uint64) int64 {
	return int64(b >> 20) //nolint:gosec
}

// SchedClearOprLog drops audit entries older than system.oprlog_days
func (a *Application) SchedClearOprLog() {
	days := a.GetSettingsInt64Value("system", "oprlog_days")
	if days <= 0 {
		days = defaultOprlogMaxAge
	}
	res := a.gormDB.
		Where("opt_time < ?", time.Now().Add(-time.Hour*24*time.Duration(days))).
		Delete(&domain.SysOprLog{})
	if res.Error != nil {
		zap.L().Error("clear operation log failed", zap.Error(res.Error))
	}
}

// SchedPurgeOTP removes expired entries from the OTP replay guard
func (a *Application) SchedPurgeOTP() {
	if a.otpManager == nil {
		return
	}
	n, err := a.otpManager.Purge(time.Now())
	if err != nil {
		zap.L().Error("otp purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Debug("otp guard purged", zap.Int("count", n))
	}
}
