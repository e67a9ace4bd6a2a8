package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	schedulerTaskTimeout = 10 * time.Minute
	schedulerWorkers     = 4
)

var ErrUnknownTask = errors.New("unknown scheduler task type")

// StartSchedulerService runs enabled schedulers periodically
func (a *Application) StartSchedulerService(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.RunDueSchedulers(ctx)
			}
		}
	}()
}

// RunDueSchedulers executes enabled schedulers that are due, at most
// schedulerWorkers at a time, and returns how many were started.
func (a *Application) RunDueSchedulers(ctx context.Context) int {
	var schedulers []domain.Scheduler
	if err := a.gormDB.Where("status = ?", common.ENABLED).Find(&schedulers).Error; err != nil {
		zap.L().Error("load schedulers failed", zap.Error(err))
		return 0
	}
	now := time.Now()
	sem := make(chan struct{}, schedulerWorkers)
	var wg sync.WaitGroup
	started := 0
	for i := range schedulers {
		sched := &schedulers[i]
		if !sched.NextRunAt.IsZero() && now.Before(sched.NextRunAt) {
			continue
		}
		// next_run_at moves first so a slow or crashing task is not re-entered on the next tick
		a.gormDB.Model(&domain.Scheduler{}).Where("id = ?", sched.ID).
			Update("next_run_at", now.Add(time.Duration(sched.Interval)*time.Second))
		started++
		wg.Add(1)
		sem <- struct{}{}
		go func(s *domain.Scheduler) {
			defer wg.Done()
			defer func() { <-sem }()
			_ = a.execute(ctx, s)
		}(sched)
	}
	wg.Wait()
	return started
}

// RunSchedulerNow triggers a scheduler execution immediately by ID
func (a *Application) RunSchedulerNow(id int64) error {
	var sched domain.Scheduler
	if err := a.gormDB.First(&sched, id).Error; err != nil {
		return err
	}
	return a.execute(context.Background(), &sched)
}

func (a *Application) execute(ctx context.Context, sched *domain.Scheduler) (err error) {
	ctx, cancel := context.WithTimeout(ctx, schedulerTaskTimeout)
	defer cancel()

	var message string
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		message, err = a.runTask(ctx, sched)
	}()

	result := "success"
	if err != nil {
		result = "failed"
		message = err.Error()
		zap.L().Error("scheduler task failed",
			zap.String("name", sched.Name),
			zap.String("task_type", sched.TaskType),
			zap.Error(err))
	} else {
		zap.L().Info("scheduler task completed",
			zap.String("name", sched.Name),
			zap.String("result", message))
	}
	a.gormDB.Model(&domain.Scheduler{}).Where("id = ?", sched.ID).Updates(map[string]interface{}{
		"last_run_at":  time.Now(),
		"last_result":  result,
		"last_message": message,
	})
	return err
}

func (a *Application) runTask(ctx context.Context, sched *domain.Scheduler) (string, error) {
	switch sched.TaskType {
	case domain.TaskShipmentSync:
		summary, err := a.SyncShipments(ctx)
		if err != nil {
			return "", err
		}
		return summary.String(), nil
	case domain.TaskCartCleanup:
		n, err := a.CleanupCarts(time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed %d cart lines", n), nil
	case domain.TaskOfferExpiry:
		n, err := a.ExpireOffers(time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("expired %d offers", n), nil
	}
	return "", errors.Wrap(ErrUnknownTask, sched.TaskType)
}

// CleanupCarts deletes cart lines not touched within store.cart_ttl_days
func (a *Application) CleanupCarts(now time.Time) (int64, error) {
	days := a.StoreSettings().CartTTLDays
	if days <= 0 {
		return 0, nil
	}
	res := a.gormDB.Where("updated_at < ?", now.Add(-time.Duration(days)*24*time.Hour)).
		Delete(&domain.CartItem{})
	return res.RowsAffected, errors.Wrap(res.Error, "cleanup carts")
}

// ExpireOffers marks active offers past their end date as expired
func (a *Application) ExpireOffers(now time.Time) (int64, error) {
	res := a.gormDB.Model(&domain.Offer{}).
		Where("status = ? and ends_at is not null and ends_at < ?", domain.OfferActive, now).
		Update("status", domain.OfferExpired)
	return res.RowsAffected, errors.Wrap(res.Error, "expire offers")
}
