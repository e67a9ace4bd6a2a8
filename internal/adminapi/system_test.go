package adminapi_test

import (
	"net/http"
	"testing"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAdmin(t *testing.T) {
	h := newHarness(t)
	shopper, _ := h.user("asha@example.com", domain.RoleCustomer)
	h.placeCOD(shopper.ID, h.product("USR1", 3500, 2), 1)

	rec, env := h.do(http.MethodGet, "/users?q=ASHA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["total"])

	rec, env = h.do(http.MethodGet, "/users/"+id(shopper.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail struct {
		Email      string `json:"email"`
		OrderCount int64  `json:"order_count"`
		TotalSpent string `json:"total_spent"`
	}
	env.decode(t, &detail)
	assert.Equal(t, "asha@example.com", detail.Email)
	assert.EqualValues(t, 1, detail.OrderCount)
	assert.Equal(t, "3500", detail.TotalSpent)

	rec, env = h.do(http.MethodPut, "/users/"+id(shopper.ID), `{"status":"disabled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.User
	env.decode(t, &updated)
	assert.Equal(t, common.DISABLED, updated.Status)
	assert.Equal(t, domain.RoleCustomer, updated.Role)

	rec, _ = h.do(http.MethodPut, "/users/"+id(shopper.ID), `{"role":"root"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPut, "/users/"+id(h.admin.ID), `{"role":"customer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestAccountChangesApplyToIssuedTokens(t *testing.T) {
	h := newHarness(t)
	staff, staffToken := h.user("staff@goldleaf.test", domain.RoleAdmin)

	rec, _ := h.as(staffToken, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPut, "/users/"+id(staff.ID), `{"role":"customer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, env := h.as(staffToken, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = h.do(http.MethodPut, "/users/"+id(staff.ID), `{"role":"admin","status":"disabled"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, env = h.as(staffToken, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", env.Error.Code)
}

func TestReviewModeration(t *testing.T) {
	h := newHarness(t)
	p := h.product("REV1", 1200, 2)
	for i, rating := range []int{5, 2} {
		u, _ := h.user("reviewer"+id(int64(i))+"@example.com", domain.RoleCustomer)
		require.NoError(t, h.app.DB().Create(&domain.Review{
			UserID: u.ID, ProductID: p.ID, Rating: rating, Status: domain.ReviewPublished,
		}).Error)
	}
	var low domain.Review
	require.NoError(t, h.app.DB().Where("rating = ?", 2).First(&low).Error)

	rec, env := h.do(http.MethodGet, "/reviews?product_id="+id(p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, env.Meta["total"])

	rec, _ = h.do(http.MethodPut, "/reviews/"+id(low.ID), `{"status":"hidden"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fresh domain.Product
	require.NoError(t, h.app.DB().First(&fresh, p.ID).Error)
	assert.Equal(t, 1, fresh.ReviewCount)
	assert.InDelta(t, 5.0, fresh.AvgRating, 0.001)

	rec, _ = h.do(http.MethodPut, "/reviews/"+id(low.ID), `{"status":"spam"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var top domain.Review
	require.NoError(t, h.app.DB().Where("rating = ?", 5).First(&top).Error)
	rec, _ = h.do(http.MethodDelete, "/reviews/"+id(top.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, h.app.DB().First(&fresh, p.ID).Error)
	assert.Zero(t, fresh.ReviewCount)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(http.MethodGet, "/settings?category=store", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var settings []app.Setting
	env.decode(t, &settings)
	require.NotEmpty(t, settings)
	for _, s := range settings {
		assert.Contains(t, s.Key, "store.")
	}

	rec, _ = h.do(http.MethodPut, "/settings", `{"store.shipping_fee":"49","store.cod_enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := h.app.StoreSettings()
	assert.Equal(t, "49", st.ShippingFee.String())
	assert.False(t, st.CODEnabled)

	rec, env = h.do(http.MethodPut, "/settings", `{"store.shipping_fee":"10","store.nope":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_SETTING", env.Error.Code)
	assert.Equal(t, "49", h.app.StoreSettings().ShippingFee.String())
}

func TestSchedulerAdmin(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(http.MethodGet, "/schedulers?task_type=cart_cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []domain.Scheduler
	env.decode(t, &rows)
	require.Len(t, rows, 1)

	rec, env = h.do(http.MethodPost, "/schedulers/"+id(rows[0].ID)+"/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ran domain.Scheduler
	env.decode(t, &ran)
	assert.Equal(t, "success", ran.LastResult)
	assert.Contains(t, ran.LastMessage, "cart lines")

	rec, _ = h.do(http.MethodPut, "/schedulers/"+id(rows[0].ID), `{"interval":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPut, "/schedulers/"+id(rows[0].ID), `{"interval":7200,"status":"disabled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Scheduler
	env.decode(t, &updated)
	assert.Equal(t, 7200, updated.Interval)
	assert.Equal(t, common.DISABLED, updated.Status)

	body := `{"name":"Nightly offers","task_type":"offer_expiry","interval":86400}`
	rec, env = h.do(http.MethodPost, "/schedulers", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var nightly domain.Scheduler
	env.decode(t, &nightly)
	rec, _ = h.do(http.MethodPost, "/schedulers", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = h.do(http.MethodDelete, "/schedulers/"+id(nightly.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(http.MethodGet, "/schedulers/"+id(nightly.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	h := newHarness(t)
	h.product("SYS1", 100, 1)

	rec, env := h.do(http.MethodGet, "/system/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []struct {
		Table string `json:"table"`
		Rows  int64  `json:"rows"`
	}
	env.decode(t, &tables)
	counts := map[string]int64{}
	for _, tc := range tables {
		counts[tc.Table] = tc.Rows
	}
	assert.EqualValues(t, 1, counts["products"])
	assert.EqualValues(t, 3, counts["sys_scheduler"])

	rec, env = h.do(http.MethodGet, "/system/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		Database struct {
			Type    string `json:"type"`
			Version string `json:"version"`
		} `json:"database"`
	}
	env.decode(t, &info)
	assert.Equal(t, "sqlite", info.Database.Type)
	assert.Contains(t, info.Database.Version, "SQLite")

	h.do(http.MethodPost, "/tags", `{"name":"Audit"}`)
	rec, env = h.do(http.MethodGet, "/system/oprlogs?q=tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []domain.SysOprLog
	env.decode(t, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "POST /tags", logs[0].OptAction)
	assert.Equal(t, h.admin.ID, logs[0].OprID)
}

func TestWhatsAppNotInitialized(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/whatsapp/status", "/whatsapp/qr"} {
		rec, env := h.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "WA_NOT_INITIALIZED", env.Error.Code)
	}
	rec, _ := h.do(http.MethodPost, "/whatsapp/send", `{"phone":"9876543210","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
