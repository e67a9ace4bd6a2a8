package adminapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// placeCOD puts qty units of p in the user's cart and checks out cash on delivery
func (h *harness) placeCOD(userID int64, p *domain.Product, qty int) *domain.Order {
	h.t.Helper()
	ctx := context.Background()
	svc := orders.FromApp(h.app, h.app.DB())
	_, err := svc.AddToCart(ctx, userID, p.ID, 0, qty)
	require.NoError(h.t, err)
	order, err := svc.PlaceOrder(ctx, orders.CheckoutInput{
		UserID: userID,
		Address: domain.Address{
			Name: "Meera Shah", Phone: "9876500000", Line1: "12 Park Street",
			City: "Kolkata", State: "WB", Pincode: "700016", Country: "India",
		},
		PaymentMethod: domain.PaymentMethodCOD,
	})
	require.NoError(h.t, err)
	return order
}

func TestOrderAdmin(t *testing.T) {
	h := newHarness(t)
	buyer, _ := h.user("buyer@example.com", domain.RoleCustomer)
	ring := h.product("RNG9", 1500, 5)
	chain := h.product("CHN9", 4000, 5)
	first := h.placeCOD(buyer.ID, ring, 1)
	second := h.placeCOD(buyer.ID, chain, 1)

	rec, env := h.do(http.MethodGet, "/orders?status=confirmed&payment_method=cod", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, env.Meta["total"])

	_, env = h.do(http.MethodGet, "/orders?q="+strings.ToLower(first.OrderNo), "")
	var found []domain.Order
	env.decode(t, &found)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)
	require.NotNil(t, found[0].User)

	rec, _ = h.do(http.MethodGet, "/orders?from=not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, env = h.do(http.MethodGet, "/orders?from=2000-01-01&to=2000-01-02", "")
	assert.EqualValues(t, 0, env.Meta["total"])

	rec, env = h.do(http.MethodPut, "/orders/"+id(first.ID)+"/status", `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", env.Error.Code)

	rec, env = h.do(http.MethodPut, "/orders/"+id(first.ID)+"/shipment", `{"courier":"Delhivery","awb":"AWB777"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, env = h.do(http.MethodPut, "/orders/"+id(first.ID)+"/status", `{"status":"shipped","note":"handed to courier"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var shipped domain.Order
	env.decode(t, &shipped)
	assert.Equal(t, domain.OrderShipped, shipped.Status)
	assert.Equal(t, "AWB777", shipped.AWB)
	last := shipped.StatusLogs[len(shipped.StatusLogs)-1]
	assert.Equal(t, domain.SourceAdmin, last.Source)
	assert.Equal(t, "handed to courier", last.Note)

	rec, _ = h.do(http.MethodPut, "/orders/"+id(second.ID)+"/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var restocked domain.Product
	require.NoError(t, h.app.DB().First(&restocked, chain.ID).Error)
	assert.Equal(t, 5, restocked.Stock)

	rec, env = h.do(http.MethodGet, "/orders/"+id(second.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail domain.Order
	env.decode(t, &detail)
	assert.Len(t, detail.Items, 1)
	require.NotNil(t, detail.User)
	assert.Equal(t, buyer.ID, detail.User.ID)

	rec, _ = h.do(http.MethodGet, "/orders/404404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderExport(t *testing.T) {
	h := newHarness(t)
	buyer, _ := h.user("export@example.com", domain.RoleCustomer)
	order := h.placeCOD(buyer.ID, h.product("EXP1", 2500, 3), 2)

	rec, _ := h.do(http.MethodGet, "/orders/export", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "order_no,created_at,customer"))
	assert.Contains(t, lines[1], order.OrderNo)
	assert.Contains(t, lines[1], "5000.00")

	rec, _ = h.do(http.MethodGet, "/orders/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))

	rec, _ = h.do(http.MethodGet, "/orders/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSalesSummary(t *testing.T) {
	h := newHarness(t)
	buyer, _ := h.user("stats@example.com", domain.RoleCustomer)
	ring := h.product("STA1", 1500, 5)
	h.placeCOD(buyer.ID, ring, 1)
	h.placeCOD(buyer.ID, h.product("STA2", 4000, 5), 1)
	cancelled := h.placeCOD(buyer.ID, ring, 2)
	_, err := orders.FromApp(h.app, h.app.DB()).Cancel(context.Background(), cancelled.ID, buyer.ID, "changed mind")
	require.NoError(t, err)

	rec, env := h.do(http.MethodGet, "/analytics/summary", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary struct {
		Revenue           decimal.Decimal  `json:"revenue"`
		Orders            int              `json:"orders"`
		AverageOrderValue decimal.Decimal  `json:"average_order_value"`
		MedianOrderValue  float64          `json:"median_order_value"`
		StatusBreakdown   map[string]int64 `json:"status_breakdown"`
		NewCustomers      int64            `json:"new_customers"`
		TopProducts       []struct {
			Name  string `json:"name"`
			Units int64  `json:"units"`
		} `json:"top_products"`
		Daily []struct {
			Orders int `json:"orders"`
		} `json:"daily"`
	}
	env.decode(t, &summary)
	// 1500 + 99 shipping, 4000 ships free
	assert.Equal(t, "5599", summary.Revenue.String())
	assert.Equal(t, 2, summary.Orders)
	assert.Equal(t, "2799.5", summary.AverageOrderValue.String())
	assert.InDelta(t, 2799.5, summary.MedianOrderValue, 0.001)
	assert.EqualValues(t, 2, summary.StatusBreakdown[string(domain.OrderConfirmed)])
	assert.EqualValues(t, 1, summary.StatusBreakdown[string(domain.OrderCancelled)])
	assert.EqualValues(t, 1, summary.NewCustomers)
	assert.Len(t, summary.TopProducts, 2)
	require.Len(t, summary.Daily, 1)
	assert.Equal(t, 2, summary.Daily[0].Orders)

	rec, _ = h.do(http.MethodGet, "/analytics/summary?from=2026-02-01&to=2026-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/analytics/timeseries?metric=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_METRIC", env.Error.Code)

	rec, _ = h.do(http.MethodGet, "/analytics/timeseries?metric=orders_created&window=15m", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeseriesRangeLimits(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(http.MethodGet, "/analytics/timeseries?metric=orders_created&from=2026-01-01&to=2026-03-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RANGE_TOO_LARGE", env.Error.Code)

	rec, env = h.do(http.MethodGet, "/analytics/timeseries?metric=orders_created&from=2026-02-01&to=2026-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)

	// a 1m window over a week would be ~10k buckets, so it is widened
	rec, env = h.do(http.MethodGet, "/analytics/timeseries?metric=orders_created&from=2026-01-01&to=2026-01-08&window=1m", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var series struct {
		Window string `json:"window"`
	}
	env.decode(t, &series)
	assert.Equal(t, "11m0s", series.Window)
}
