// Package metrics keeps lightweight time-series data (system gauges, order
// counters) in an embedded tstorage database under the workdir.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
)

// Point is a single sample returned by Series
type Point struct {
	Timestamp int64   `json:"ts"`
	Value     float64 `json:"value"`
}

var (
	mu      sync.RWMutex
	storage tstorage.Storage
	gauges  = map[string]int64{}
)

// InitMetrics opens the time-series store at <workdir>/data/metrics
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		return nil
	}
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "data", "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithPartitionDuration(6*time.Hour),
		tstorage.WithRetention(90*24*time.Hour),
	)
	if err != nil {
		return errors.Wrap(err, "open metrics storage")
	}
	storage = s
	return nil
}

// InitMemoryMetrics opens an in-memory store, used by tests
func InitMemoryMetrics() error {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		return nil
	}
	s, err := tstorage.NewStorage(tstorage.WithTimestampPrecision(tstorage.Seconds))
	if err != nil {
		return errors.Wrap(err, "open metrics storage")
	}
	storage = s
	return nil
}

func insert(name string, ts time.Time, value float64) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return
	}
	_ = s.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: ts.Unix(), Value: value},
	}})
}

// SetGauge records the current value of a gauge
func SetGauge(name string, value int64) {
	mu.Lock()
	gauges[name] = value
	mu.Unlock()
	insert(name, time.Now(), float64(value))
}

// GetGauge returns the last value set for name
func GetGauge(name string) int64 {
	mu.RLock()
	defer mu.RUnlock()
	return gauges[name]
}

// AddCounter records an increment event for a counter
func AddCounter(name string, delta float64) {
	insert(name, time.Now(), delta)
}

// Series returns the samples of name between from and to (inclusive)
func Series(name string, from, to time.Time) ([]Point, error) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	rows, err := s.Select(name, nil, from.Unix(), to.Unix()+1)
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return []Point{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", name)
	}
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{Timestamp: r.Timestamp, Value: r.Value})
	}
	return points, nil
}

// Bucket sums points into fixed windows starting at from
func Bucket(points []Point, from time.Time, window time.Duration) []Point {
	if window <= 0 {
		return points
	}
	start := from.Unix()
	step := int64(window.Seconds())
	byStart := map[int64]float64{}
	var keys []int64
	for _, p := range points {
		k := start + ((p.Timestamp-start)/step)*step
		if _, ok := byStart[k]; !ok {
			keys = append(keys, k)
		}
		byStart[k] += p.Value
	}
	out := make([]Point, 0, len(keys))
	for _, k := range keys {
		out = append(out, Point{Timestamp: k, Value: byStart[k]})
	}
	return out
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
