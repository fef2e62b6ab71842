package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/metrics"
)

const (
	CartPath     = "/api/v1/cart"
	CheckoutPath = "/api/v1/checkout"
)

const (
	noticeCatalogDegraded = "The product catalog is unavailable, showing a limited selection."
	noticeTryAgain        = "Please try again."
	noticeEmptyCart       = "Your cart is empty!"
	noticeCartCleared     = "Cart cleared!"
	noticePaymentOK       = "Payment Successful!"
)

type Response struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, Response{Status: "error", Message: msg})
}

func productID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid product id")
	}
	return id, nil
}

func backend(o cart.Owner) string {
	if o.Authenticated() {
		return "account"
	}
	return "guest"
}

// storageFailure answers a failed cart operation. Contention is retryable and reported as 503.
func storageFailure(c echo.Context, l *slog.Logger, m *metrics.Collector, o cart.Owner, event string, err error) error {
	if errors.Is(err, cart.ErrTransient) {
		m.TransientFailure(backend(o))
		l.Warn(event, "status", 503, "reason", "storage contention", "error", err)
		return errorJSON(c, http.StatusServiceUnavailable, noticeTryAgain)
	}
	l.Error(event, "status", 500, "error", err)
	return errorJSON(c, http.StatusInternalServerError, "internal error")
}
