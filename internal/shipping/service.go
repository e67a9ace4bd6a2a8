package shipping

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrSyncRunning = errors.New("shipment sync already running")

// Publisher is satisfied by EventBus.Bus
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Summary outcome of one sync pass
type Summary struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("checked=%d updated=%d unchanged=%d failed=%d", s.Checked, s.Updated, s.Unchanged, s.Failed)
}

// StatusSyncService polls the tracker for open orders and advances their status
type StatusSyncService struct {
	repo      OrderRepository
	tracker   Tracker
	publisher Publisher
	workers   int
	batch     int
	timeout   time.Duration
	running   atomic.Bool
}

func NewStatusSyncService(repo OrderRepository, tracker Tracker, publisher Publisher, workers int) *StatusSyncService {
	if workers <= 0 {
		workers = 8
	}
	return &StatusSyncService{
		repo:      repo,
		tracker:   tracker,
		publisher: publisher,
		workers:   workers,
		batch:     500,
		timeout:   30 * time.Second,
	}
}

// SyncOnce checks every trackable order once. Per-order failures are counted, never returned.
func (s *StatusSyncService) SyncOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	if !s.running.CompareAndSwap(false, true) {
		return summary, ErrSyncRunning
	}
	defer s.running.Store(false)

	orders, err := s.repo.ListTrackable(ctx, s.batch)
	if err != nil {
		return summary, err
	}
	if len(orders) == 0 {
		return summary, nil
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return summary, errors.Wrap(err, "shipping: create worker pool")
	}
	defer pool.Release()

	var updated, unchanged, failed int64
	var wg sync.WaitGroup
	for _, order := range orders {
		o := order
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			switch s.syncOrder(ctx, o) {
			case outcomeUpdated:
				atomic.AddInt64(&updated, 1)
			case outcomeUnchanged:
				atomic.AddInt64(&unchanged, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		})
		if err != nil {
			wg.Done()
			atomic.AddInt64(&failed, 1)
			zap.L().Warn("shipping: submit failed", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	wg.Wait()

	summary.Checked = len(orders)
	summary.Updated = int(updated)
	summary.Unchanged = int(unchanged)
	summary.Failed = int(failed)
	zap.L().Info("shipping: sync finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeUnchanged
	outcomeUpdated
)

func (s *StatusSyncService) syncOrder(ctx context.Context, o *domain.Order) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("shipping: panic while syncing order", zap.Int64("order_id", o.ID), zap.Any("panic", r))
			result = outcomeFailed
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.tracker.Track(tctx, o.AWB)
	if err != nil {
		zap.L().Warn("shipping: track failed", zap.Int64("order_id", o.ID), zap.String("awb", o.AWB), zap.Error(err))
		return outcomeFailed
	}

	to, known := MapStatus(res.RawStatus)
	if !known || !IsForward(o.Status, to) {
		if err := s.repo.TouchTracked(ctx, o.ID, res.RawStatus, time.Now()); err != nil {
			zap.L().Warn("shipping: touch failed", zap.Int64("order_id", o.ID), zap.Error(err))
			return outcomeFailed
		}
		return outcomeUnchanged
	}

	note := fmt.Sprintf("courier status %q", res.RawStatus)
	if err := s.repo.ApplyStatus(ctx, o, to, res.RawStatus, note); err != nil {
		if errors.Is(err, ErrStaleOrder) {
			return outcomeUnchanged
		}
		zap.L().Error("shipping: update failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return outcomeFailed
	}
	zap.L().Info("shipping: order status advanced",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)))

	if s.publisher != nil {
		s.publisher.Publish(domain.TopicOrderStatusChanged, domain.OrderStatusEvent{
			OrderID: o.ID, From: o.Status, To: to, Source: domain.SourceTracker,
		})
	}
	return outcomeUpdated
}
