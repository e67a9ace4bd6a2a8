package webserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/auth"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetAppContext returns the application injected into every request
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(appCtxKey).(app.AppContext)
}

// GetDB returns the database bound to the request context
func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

func claims(c echo.Context) *auth.Claims {
	token, ok := c.Get(userKey).(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	cl, _ := token.Claims.(*auth.Claims)
	return cl
}

// CurrentUserID returns the authenticated user's id, 0 when anonymous
func CurrentUserID(c echo.Context) int64 {
	if cl := claims(c); cl != nil {
		return cl.UserID
	}
	return 0
}

// CurrentUser returns the account loaded for the request, nil when anonymous
func CurrentUser(c echo.Context) *domain.User {
	u, _ := c.Get(accountKey).(*domain.User)
	return u
}

// CurrentRole returns the stored role of the account, falling back to the token claim
func CurrentRole(c echo.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.Role
	}
	if cl := claims(c); cl != nil {
		return cl.Role
	}
	return ""
}

// currentAccount reloads the token's user so role and status changes apply to
// tokens that were issued earlier
func currentAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var user domain.User
		err := GetDB(c).Select("id", "name", "email", "role", "status").
			Where("id = ?", CurrentUserID(c)).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Account no longer exists", nil)
		case err != nil:
			return Fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load account", err.Error())
		}
		if user.Status != common.ENABLED {
			return Fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled", nil)
		}
		c.Set(accountKey, &user)
		return next(c)
	}
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentRole(c) != domain.RoleAdmin {
			return Fail(c, http.StatusForbidden, "FORBIDDEN", "Administrator access required", nil)
		}
		return next(c)
	}
}

// operationLog records successful admin writes in sys_opr_log
func operationLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		method := c.Request().Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return err
		}
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			return err
		}
		db := GetAppContext(c).DB()
		uid := CurrentUserID(c)
		var name string
		if user := CurrentUser(c); user != nil {
			name = user.Name
			if name == "" {
				name = user.EmailValue()
			}
		}
		entry := domain.SysOprLog{
			ID:        common.UUIDint64(),
			OprID:     uid,
			OprName:   name,
			OprIp:     c.RealIP(),
			OptAction: method + " " + strings.TrimPrefix(c.Path(), adminPrefix),
			OptDesc:   c.Request().URL.RequestURI(),
			OptTime:   time.Now(),
		}
		if dbErr := db.Create(&entry).Error; dbErr != nil {
			zap.L().Warn("webserver: write operation log failed", zap.Error(dbErr))
		}
		return err
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			switch {
			case res.Status >= http.StatusInternalServerError:
				zap.L().Error("http request", fields...)
			case res.Status >= http.StatusBadRequest:
				zap.L().Warn("http request", fields...)
			default:
				zap.L().Debug("http request", fields...)
			}
			return nil
		}
	}
}
