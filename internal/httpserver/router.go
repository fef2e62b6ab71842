package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/storefront/internal/middleware/logging"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/validate"
)

const (
	defaultAuthRate  = rate.Limit(0.2)
	defaultAuthBurst = 5
	readyTimeout     = 2 * time.Second
)

type Deps struct {
	DB       *gorm.DB
	Sessions session.Store
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Collector
	Resolver *identity.Resolver
	Secure   bool

	AuthRate  rate.Limit
	AuthBurst int

	ProductHandler  *ProductHTTP
	CartHandler     *CartHTTP
	CheckoutHandler *CheckoutHTTP
	AuthHandler     *AuthHTTP
}

// New builds the echo instance with the shared middleware chain and every route registered.
func New(logger *slog.Logger, d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.EchoValidator{}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(d.Metrics.Middleware)

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.Gatherer)))
	}

	v1 := e.Group("/api/v1", d.Resolver.Middleware, csrf.Middleware(csrf.Config{Secure: d.Secure}))

	limit := authLimiter(d.AuthRate, d.AuthBurst)
	v1.POST("/register", d.AuthHandler.Register, limit)
	v1.POST("/login", d.AuthHandler.Login, limit)
	v1.POST("/logout", d.AuthHandler.Logout)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.List)
	products.GET("/:id", d.ProductHandler.Get)

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.View)
	cart.DELETE("", d.CartHandler.Clear)
	cart.GET("/count", d.CartHandler.CountItems)
	cart.POST("/items/:id", d.CartHandler.Add)
	cart.POST("/items/:id/increase", d.CartHandler.Increase)
	cart.POST("/items/:id/decrease", d.CartHandler.Decrease)
	cart.DELETE("/items/:id", d.CartHandler.Remove)

	v1.GET("/checkout", d.CheckoutHandler.Review)
	v1.POST("/checkout", d.CheckoutHandler.Commit)
	v1.POST("/buy-now/:id", d.CheckoutHandler.BuyNow)
}

func (d *Deps) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
	defer cancel()
	l := logging.FromContext(ctx).With("handler", "health.ready")

	if d.DB != nil {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			l.Warn("not_ready", "status", 503, "reason", "database", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	if d.Sessions != nil {
		if err := d.Sessions.Ping(ctx); err != nil {
			l.Warn("not_ready", "status", 503, "reason", "session store", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}

func authLimiter(r rate.Limit, burst int) echo.MiddlewareFunc {
	if r <= 0 {
		r = defaultAuthRate
	}
	if burst <= 0 {
		burst = defaultAuthBurst
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      r,
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logging.FromContext(c.Request().Context()).Warn("auth_rate_limited", "status", 429, "ip", identifier)
			return errorJSON(c, http.StatusTooManyRequests, "Too many attempts, please try again later.")
		},
	})
}
