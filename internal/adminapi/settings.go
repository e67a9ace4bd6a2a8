package adminapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func registerSettingsRoutes() {
	webserver.AdminGET("/settings", listSettings)
	webserver.AdminPUT("/settings", updateSettings)
}

// listSettings returns every known setting, optionally narrowed to ?category=
func listSettings(c echo.Context) error {
	all := GetAppContext(c).ConfigMgr().All()
	category := c.QueryParam("category")
	if category == "" {
		return ok(c, all)
	}
	out := make([]app.Setting, 0, len(all))
	for _, s := range all {
		if strings.HasPrefix(s.Key, category+".") {
			out = append(out, s)
		}
	}
	return ok(c, out)
}

// updateSettings takes {"store.shipping_fee": "99", ...}; unknown keys reject the whole request
func updateSettings(c echo.Context) error {
	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if len(payload) == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "No settings given", nil)
	}
	appCtx := GetAppContext(c)
	if err := appCtx.SaveSettings(payload); err != nil {
		if errors.Is(err, app.ErrUnknownSetting) {
			return fail(c, http.StatusBadRequest, "UNKNOWN_SETTING", err.Error(), nil)
		}
		return webserver.FailDB(c, err, "Setting")
	}
	return ok(c, appCtx.ConfigMgr().All())
}
