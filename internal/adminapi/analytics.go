package adminapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/metrics"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

const defaultAnalyticsDays = 30

// timeseries reads are capped at maxSeriesRange, and counter windows are widened
// so a response never carries more than maxSeriesBuckets points.
const (
	maxSeriesRange   = 31 * 24 * time.Hour
	maxSeriesBuckets = 1000
)

type topProduct struct {
	ProductID int64           `json:"product_id,string"`
	Name      string          `json:"name"`
	Units     int64           `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type dayRevenue struct {
	Date    string          `json:"date"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type salesSummary struct {
	From              time.Time        `json:"from"`
	To                time.Time        `json:"to"`
	Revenue           decimal.Decimal  `json:"revenue"`
	Orders            int              `json:"orders"`
	AverageOrderValue decimal.Decimal  `json:"average_order_value"`
	MedianOrderValue  float64          `json:"median_order_value"`
	P90OrderValue     float64          `json:"p90_order_value"`
	StatusBreakdown   map[string]int64 `json:"status_breakdown"`
	TopProducts       []topProduct     `json:"top_products"`
	NewCustomers      int64            `json:"new_customers"`
	Daily             []dayRevenue     `json:"daily"`
}

// counters are summed per window, gauges are returned as sampled
var timeseriesMetrics = map[string]bool{
	app.MetricOrdersCreated: true,
	app.MetricOrderRevenue:  true,
	app.MetricUsersCreated:  true,
	app.MetricSystemCPU:     false,
	app.MetricSystemMem:     false,
	app.MetricProcessCPU:    false,
	app.MetricProcessMem:    false,
}

var revenueExcluded = []domain.OrderStatus{domain.OrderCancelled, domain.OrderReturned}

func registerAnalyticsRoutes() {
	webserver.AdminGET("/analytics/summary", getSalesSummary)
	webserver.AdminGET("/analytics/timeseries", getTimeseries)
}

// parseRange reads from/to, defaulting to the last 30 days
func parseRange(c echo.Context) (time.Time, time.Time, error) {
	to := time.Now()
	if v := c.QueryParam("to"); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "to")
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultAnalyticsDays)
	if v := c.QueryParam("from"); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "from")
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func getSalesSummary(c echo.Context) error {
	from, to, err := parseRange(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid date range", err.Error())
	}
	db := GetDB(c)
	summary := salesSummary{
		From:            from,
		To:              to,
		StatusBreakdown: map[string]int64{},
		TopProducts:     []topProduct{},
		Daily:           []dayRevenue{},
	}

	var g errgroup.Group
	var placed []domain.Order
	g.Go(func() error {
		return db.Model(&domain.Order{}).
			Select("id", "total", "created_at").
			Where("created_at >= ? AND created_at < ? AND status NOT IN ?", from, to, revenueExcluded).
			Find(&placed).Error
	})
	g.Go(func() error {
		var rows []struct {
			Status string
			N      int64
		}
		err := db.Model(&domain.Order{}).
			Select("status, COUNT(*) AS n").
			Where("created_at >= ? AND created_at < ?", from, to).
			Group("status").Scan(&rows).Error
		for _, r := range rows {
			summary.StatusBreakdown[r.Status] = r.N
		}
		return err
	})
	g.Go(func() error {
		return db.Model(&domain.OrderItem{}).
			Select("order_items.product_id, MAX(order_items.name) AS name, SUM(order_items.quantity) AS units, SUM(order_items.line_total) AS revenue").
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("orders.created_at >= ? AND orders.created_at < ? AND orders.status NOT IN ?", from, to, revenueExcluded).
			Group("order_items.product_id").
			Order("units DESC").
			Limit(10).
			Scan(&summary.TopProducts).Error
	})
	g.Go(func() error {
		return db.Model(&domain.User{}).
			Where("role = ? AND created_at >= ? AND created_at < ?", domain.RoleCustomer, from, to).
			Count(&summary.NewCustomers).Error
	})
	if err := g.Wait(); err != nil {
		return webserver.FailDB(c, err, "Analytics")
	}

	summary.Orders = len(placed)
	values := make([]float64, 0, len(placed))
	daily := map[string]*dayRevenue{}
	for _, o := range placed {
		summary.Revenue = summary.Revenue.Add(o.Total)
		values = append(values, o.Total.InexactFloat64())
		day := o.CreatedAt.In(to.Location()).Format(time.DateOnly)
		d, seen := daily[day]
		if !seen {
			d = &dayRevenue{Date: day}
			daily[day] = d
		}
		d.Orders++
		d.Revenue = d.Revenue.Add(o.Total)
	}
	if summary.Orders > 0 {
		summary.AverageOrderValue = summary.Revenue.Div(decimal.NewFromInt(int64(summary.Orders))).Round(2)
		median, _ := stats.Median(values)
		p90, _ := stats.Percentile(values, 90)
		summary.MedianOrderValue, _ = stats.Round(median, 2)
		summary.P90OrderValue, _ = stats.Round(p90, 2)
	}
	for _, d := range daily {
		summary.Daily = append(summary.Daily, *d)
	}
	sort.Slice(summary.Daily, func(i, j int) bool { return summary.Daily[i].Date < summary.Daily[j].Date })
	return ok(c, summary)
}

// getTimeseries reads ?metric= from the embedded time-series store. Counters are
// summed into ?window= buckets (default 1h); gauges are thinned to every nth sample.
func getTimeseries(c echo.Context) error {
	name := c.QueryParam("metric")
	counter, known := timeseriesMetrics[name]
	if !known {
		names := make([]string, 0, len(timeseriesMetrics))
		for k := range timeseriesMetrics {
			names = append(names, k)
		}
		sort.Strings(names)
		return fail(c, http.StatusBadRequest, "UNKNOWN_METRIC", "Unknown metric", names)
	}
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := c.QueryParam("from"); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid from", err.Error())
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid to", err.Error())
		}
		to = t
	}
	if to.Before(from) {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "to must not be before from", nil)
	}
	if to.Sub(from) > maxSeriesRange {
		return fail(c, http.StatusBadRequest, "RANGE_TOO_LARGE", "Time range is too large",
			map[string]string{"max_range": maxSeriesRange.String()})
	}
	points, err := metrics.Series(name, from, to)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to read metric", err.Error())
	}
	if points == nil {
		points = []metrics.Point{}
	}
	var window time.Duration
	if counter {
		window = time.Hour
		if v := c.QueryParam("window"); v != "" {
			window = cast.ToDuration(v)
		}
		if window < time.Minute {
			window = time.Minute
		}
		if floor := to.Sub(from) / maxSeriesBuckets; window < floor {
			window = floor.Truncate(time.Minute) + time.Minute
		}
		points = metrics.Bucket(points, from, window)
	} else if len(points) > maxSeriesBuckets {
		stride := (len(points) + maxSeriesBuckets - 1) / maxSeriesBuckets
		thinned := make([]metrics.Point, 0, maxSeriesBuckets)
		for i := 0; i < len(points); i += stride {
			thinned = append(thinned, points[i])
		}
		points = thinned
	}
	resp := map[string]interface{}{
		"metric": name,
		"from":   from,
		"to":     to,
		"points": points,
	}
	if counter {
		resp["window"] = window.String()
	}
	return ok(c, resp)
}
