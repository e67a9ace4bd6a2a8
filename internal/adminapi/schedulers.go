package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// schedulerPayload create request
type schedulerPayload struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	TaskType string `json:"task_type" validate:"required,oneof=shipment_sync cart_cleanup offer_expiry"`
	Interval int    `json:"interval" validate:"required,min=10"`
	Status   string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Config   string `json:"config" validate:"omitempty,max=2000"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

// schedulerUpdatePayload relaxes validation rules for partial updates
type schedulerUpdatePayload struct {
	Name     string `json:"name" validate:"omitempty,min=1,max=100"`
	TaskType string `json:"task_type" validate:"omitempty,oneof=shipment_sync cart_cleanup offer_expiry"`
	Interval int    `json:"interval" validate:"omitempty,min=10"`
	Status   string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Config   string `json:"config" validate:"omitempty,max=2000"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

var schedulerSorts = map[string]string{
	"id":          "id",
	"name":        "name",
	"next_run_at": "next_run_at",
	"last_run_at": "last_run_at",
}

func registerSchedulerRoutes() {
	webserver.AdminGET("/schedulers", listSchedulers)
	webserver.AdminGET("/schedulers/:id", getScheduler)
	webserver.AdminPOST("/schedulers", createScheduler)
	webserver.AdminPUT("/schedulers/:id", updateScheduler)
	webserver.AdminDELETE("/schedulers/:id", deleteScheduler)
	webserver.AdminPOST("/schedulers/:id/run", triggerScheduler)
}

// triggerScheduler runs the task synchronously and returns the refreshed row
func triggerScheduler(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	runErr := GetAppContext(c).RunSchedulerNow(id)
	var sched domain.Scheduler
	if err := GetDB(c).First(&sched, id).Error; err != nil {
		return webserver.FailDB(c, err, "Scheduler")
	}
	if runErr != nil {
		if errors.Is(runErr, app.ErrUnknownTask) {
			return fail(c, http.StatusBadRequest, "UNKNOWN_TASK", runErr.Error(), sched)
		}
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Scheduler task failed", sched)
	}
	return ok(c, sched)
}

func listSchedulers(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.Scheduler{})
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		query = webserver.ILike(query, "name", name)
	}
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if taskType := strings.TrimSpace(c.QueryParam("task_type")); taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}
	var total int64
	query.Count(&total)
	var rows []domain.Scheduler
	err := query.Order(webserver.SortOrder(c, schedulerSorts, "id")).
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Scheduler")
	}
	return paged(c, rows, total, page, pageSize)
}

func getScheduler(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	var sched domain.Scheduler
	if err := GetDB(c).First(&sched, id).Error; err != nil {
		return webserver.FailDB(c, err, "Scheduler")
	}
	return ok(c, sched)
}

func createScheduler(c echo.Context) error {
	var payload schedulerPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	if payload.Status == "" {
		payload.Status = "enabled"
	}
	sched := domain.Scheduler{
		Name:      payload.Name,
		TaskType:  payload.TaskType,
		Interval:  payload.Interval,
		Status:    payload.Status,
		Config:    payload.Config,
		Remark:    payload.Remark,
		NextRunAt: time.Now().Add(time.Duration(payload.Interval) * time.Second),
	}
	if err := GetDB(c).Create(&sched).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "NAME_EXISTS", "Scheduler name already exists", nil)
		}
		return webserver.FailDB(c, err, "Scheduler")
	}
	return created(c, sched)
}

func updateScheduler(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	db := GetDB(c)
	var sched domain.Scheduler
	if err := db.First(&sched, id).Error; err != nil {
		return webserver.FailDB(c, err, "Scheduler")
	}
	var payload schedulerUpdatePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}

	updates := make(map[string]interface{})
	if payload.Name != "" {
		updates["name"] = payload.Name
	}
	if payload.TaskType != "" {
		updates["task_type"] = payload.TaskType
	}
	if payload.Interval > 0 {
		updates["interval"] = payload.Interval
		updates["next_run_at"] = time.Now().Add(time.Duration(payload.Interval) * time.Second)
	}
	if payload.Status != "" {
		updates["status"] = payload.Status
	}
	if payload.Config != "" {
		updates["config"] = payload.Config
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}
	if len(updates) > 0 {
		if err := db.Model(&sched).Updates(updates).Error; err != nil {
			if webserver.IsDuplicateKey(err) {
				return fail(c, http.StatusConflict, "NAME_EXISTS", "Scheduler name already exists", nil)
			}
			return webserver.FailDB(c, err, "Scheduler")
		}
	}
	db.First(&sched, id)
	return ok(c, sched)
}

func deleteScheduler(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	res := GetDB(c).Delete(&domain.Scheduler{}, id)
	if res.Error != nil {
		return webserver.FailDB(c, res.Error, "Scheduler")
	}
	if res.RowsAffected == 0 {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Scheduler not found", nil)
	}
	return ok(c, map[string]interface{}{"id": id})
}
