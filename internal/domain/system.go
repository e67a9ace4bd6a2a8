package domain

import (
	"time"
)

type SysConfig struct {
	ID        int64     `json:"id,string"   form:"id"`
	Sort      int       `json:"sort"  form:"sort"`
	Type      string    `gorm:"index" json:"type" form:"type"`
	Name      string    `gorm:"index" json:"name" form:"name"`
	Value     string    `json:"value" form:"value"`
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysConfig) TableName() string {
	return "sys_config"
}

// SysOprLog audit trail of admin write operations
type SysOprLog struct {
	ID        int64     `json:"id,string"`
	OprID     int64     `gorm:"index" json:"opr_id,string"`
	OprName   string    `json:"opr_name"`
	OprIp     string    `json:"opr_ip"`
	OptAction string    `json:"opt_action"`
	OptDesc   string    `json:"opt_desc"`
	OptTime   time.Time `gorm:"index" json:"opt_time"`
}

// TableName Specify table name
func (SysOprLog) TableName() string {
	return "sys_opr_log"
}

// Scheduler periodic task managed from the admin panel
type Scheduler struct {
	ID          int64     `json:"id,string" form:"id"`
	Name        string    `gorm:"uniqueIndex;size:100" json:"name" form:"name"`
	TaskType    string    `gorm:"size:50" json:"task_type" form:"task_type"` // shipment_sync, cart_cleanup, offer_expiry
	Interval    int       `json:"interval" form:"interval"`                  // Interval in seconds
	Status      string    `gorm:"size:20" json:"status" form:"status"`       // enabled/disabled
	LastRunAt   time.Time `json:"last_run_at"`
	NextRunAt   time.Time `json:"next_run_at"`
	LastResult  string    `json:"last_result" form:"last_result"` // success/failed
	LastMessage string    `json:"last_message" form:"last_message"`
	Config      string    `json:"config" form:"config"` // JSON config for task-specific settings
	Remark      string    `json:"remark" form:"remark"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Scheduler) TableName() string {
	return "sys_scheduler"
}

const (
	TaskShipmentSync = "shipment_sync"
	TaskCartCleanup  = "cart_cleanup"
	TaskOfferExpiry  = "offer_expiry"
)
