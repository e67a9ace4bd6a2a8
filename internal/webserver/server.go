package webserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/auth"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	apiPrefix   = "/api/v1"
	adminPrefix = "/api/v1/admin"
	appCtxKey   = "appctx"
	userKey     = "user"
	accountKey  = "account"
)

type scope int

const (
	scopePublic scope = iota
	scopeUser
	scopeAdmin
)

type route struct {
	scope   scope
	method  string
	path    string
	handler echo.HandlerFunc
}

var (
	routesMu sync.Mutex
	routes   []route
)

func register(s scope, method, path string, h echo.HandlerFunc) {
	routesMu.Lock()
	defer routesMu.Unlock()
	routes = append(routes, route{scope: s, method: method, path: path, handler: h})
}

// Public routes under /api/v1

func PubGET(path string, h echo.HandlerFunc)  { register(scopePublic, http.MethodGet, path, h) }
func PubPOST(path string, h echo.HandlerFunc) { register(scopePublic, http.MethodPost, path, h) }

// Authenticated routes under /api/v1

func ApiGET(path string, h echo.HandlerFunc)    { register(scopeUser, http.MethodGet, path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { register(scopeUser, http.MethodPost, path, h) }
func ApiPUT(path string, h echo.HandlerFunc)    { register(scopeUser, http.MethodPut, path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { register(scopeUser, http.MethodDelete, path, h) }

// Admin routes under /api/v1/admin

func AdminGET(path string, h echo.HandlerFunc)    { register(scopeAdmin, http.MethodGet, path, h) }
func AdminPOST(path string, h echo.HandlerFunc)   { register(scopeAdmin, http.MethodPost, path, h) }
func AdminPUT(path string, h echo.HandlerFunc)    { register(scopeAdmin, http.MethodPut, path, h) }
func AdminDELETE(path string, h echo.HandlerFunc) { register(scopeAdmin, http.MethodDelete, path, h) }

var (
	promOnce sync.Once
	promMW   echo.MiddlewareFunc
)

// prometheusMiddleware collectors register once per process, the middleware is shared by every echo instance
func prometheusMiddleware() echo.MiddlewareFunc {
	promOnce.Do(func() {
		promMW = echoprometheus.NewMiddleware("storefront")
	})
	return promMW
}

type customValidator struct {
	validator *validator.Validate
}

func (cv *customValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsoniterSerializer struct{}

func (jsoniterSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsoniterSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

// NewEcho builds the HTTP handler with every registered route
func NewEcho(appCtx app.AppContext) *echo.Echo {
	cfg := appCtx.Config()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.ERROR)
	if cfg.System.Debug {
		e.Logger.SetLevel(log.DEBUG)
	}
	e.JSONSerializer = jsoniterSerializer{}
	e.Validator = &customValidator{validator: validator.New()}
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			zap.L().Error("webserver: panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(requestLogger())
	e.Use(prometheusMiddleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(cfg.Web.CorsOrigins),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	bodyLimit := cfg.Web.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "12M"
	}
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(appCtxKey, appCtx)
			return next(c)
		}
	})

	e.GET("/health", func(c echo.Context) error {
		status := "ok"
		if sqlDB, err := appCtx.DB().DB(); err != nil || sqlDB.PingContext(c.Request().Context()) != nil {
			status = "degraded"
		}
		return OK(c, map[string]interface{}{"status": status, "time": time.Now()})
	})
	e.GET("/metrics", echoprometheus.NewHandler())

	jwtMW := echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(cfg.Web.Secret),
		ContextKey: userKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(auth.Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid token", nil)
		},
	})

	pub := e.Group(apiPrefix)
	api := e.Group(apiPrefix, jwtMW, currentAccount)
	admin := e.Group(adminPrefix, jwtMW, currentAccount, requireAdmin, operationLog)

	routesMu.Lock()
	defer routesMu.Unlock()
	for _, r := range routes {
		switch r.scope {
		case scopePublic:
			pub.Add(r.method, r.path, r.handler)
		case scopeUser:
			api.Add(r.method, r.path, r.handler)
		case scopeAdmin:
			admin.Add(r.method, r.path, r.handler)
		}
	}
	return e
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprint(he.Message)
		switch status {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case http.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		case http.StatusBadRequest:
			code = "INVALID_REQUEST"
		case http.StatusUnauthorized:
			code = "UNAUTHORIZED"
		}
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("webserver: request failed",
			zap.String("path", c.Path()), zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = Fail(c, status, code, message, nil)
}

// Server wraps echo with lifecycle helpers used by main
type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(appCtx app.AppContext) *Server {
	cfg := appCtx.Config()
	return &Server{
		echo: NewEcho(appCtx),
		addr: fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
	}
}

// Start blocks until the server stops
func (s *Server) Start() error {
	zap.S().Infof("webserver listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "webserver start")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
