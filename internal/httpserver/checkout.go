package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/flash"
	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
)

type CheckoutHTTP struct {
	Engine  *cart.Engine
	Flow    *checkout.Flow
	Events  events.Publisher
	Metrics *metrics.Collector
}

type reviewView struct {
	checkout.Summary
	Notices []string `json:"notices"`
}

type receiptView struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Receipt checkout.Receipt `json:"receipt"`
	Notices []string         `json:"notices"`
}

func (h *CheckoutHTTP) Review(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.review")

	owner := identity.FromContext(c).Owner()
	sum, err := h.Flow.Review(ctx, h.Engine.For(owner))
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		l.Info("checkout_review_skipped", "reason", "empty cart")
		flash.Add(c, noticeEmptyCart)
		return c.Redirect(http.StatusSeeOther, CartPath)
	case err != nil:
		return storageFailure(c, l, h.Metrics, owner, "checkout_review_error", err)
	}

	return c.JSON(http.StatusOK, reviewView{Summary: sum, Notices: flash.Consume(c)})
}

func (h *CheckoutHTTP) Commit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.commit")

	owner := identity.FromContext(c).Owner()
	receipt, err := h.Flow.Commit(ctx, h.Engine.For(owner))
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		l.Info("checkout_commit_skipped", "reason", "empty cart")
		flash.Add(c, noticeEmptyCart)
		return c.Redirect(http.StatusSeeOther, CartPath)
	case err != nil:
		return storageFailure(c, l, h.Metrics, owner, "checkout_commit_error", err)
	}

	h.Metrics.CheckoutCommitted(receipt.Total)
	e := events.New(events.CheckoutCommitted, owner)
	e.Quantity = receipt.Count
	e.Total = receipt.Total
	events.Emit(ctx, h.Events, e)

	l.Info("checkout_committed", "total", receipt.Total, "items", receipt.Count)
	return c.JSON(http.StatusOK, receiptView{
		Status:  "ok",
		Message: noticePaymentOK,
		Receipt: receipt,
		Notices: flash.Consume(c),
	})
}

// BuyNow replaces the cart with a single unit of the product and moves on to review.
func (h *CheckoutHTTP) BuyNow(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.buy_now")

	productID, err := productID(c)
	if err != nil {
		l.Warn("buy_now_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	owner := identity.FromContext(c).Owner()
	p, degraded, err := h.Flow.BuyNow(ctx, h.Engine.For(owner), productID)
	h.Metrics.CartOperation("replace", backend(owner), err)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "buy_now_error", err)
	}
	if degraded {
		flash.Add(c, noticeCatalogDegraded)
	}

	e := events.New(events.CartReplaced, owner)
	e.ProductID = p.ID
	e.Quantity = 1
	events.Emit(ctx, h.Events, e)

	l.Info("buy_now", "product_id", p.ID, "degraded", degraded)
	return c.Redirect(http.StatusSeeOther, CheckoutPath)
}
