package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/flash"
	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
)

type CartHTTP struct {
	Engine  *cart.Engine
	Catalog Catalog
	Events  events.Publisher
	Metrics *metrics.Collector
}

type addRequest struct {
	Quantity int `json:"quantity" form:"quantity" validate:"gte=0,lte=1000"`
}

type cartView struct {
	Lines         []cart.Line `json:"lines"`
	Total         float64     `json:"total"`
	Count         int         `json:"count"`
	Authenticated bool        `json:"authenticated"`
	Username      string      `json:"username,omitempty"`
	Notices       []string    `json:"notices"`
}

func (h *CartHTTP) View(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.view")

	id := identity.FromContext(c)
	owner := id.Owner()
	lines, err := h.Engine.For(owner).ListItems(ctx)
	h.Metrics.CartOperation("list", backend(owner), err)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "get_cart_error", err)
	}

	return c.JSON(http.StatusOK, cartView{
		Lines:         lines,
		Total:         cart.Total(lines),
		Count:         cart.Count(lines),
		Authenticated: id.Authenticated(),
		Username:      id.Username,
		Notices:       flash.Consume(c),
	})
}

func (h *CartHTTP) CountItems(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.count")

	owner := identity.FromContext(c).Owner()
	n, err := h.Engine.Count(ctx, owner)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "count_cart_error", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *CartHTTP) Add(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	productID, err := productID(c)
	if err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	var req addRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "reason", "cannot bind the request", "error", err)
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, "invalid quantity")
	}

	p, degraded := h.Catalog.GetProduct(ctx, productID)
	if degraded {
		flash.Add(c, noticeCatalogDegraded)
	}

	owner := identity.FromContext(c).Owner()
	err = h.Engine.For(owner).AddItem(ctx, p, req.Quantity)
	h.Metrics.CartOperation("add", backend(owner), err)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "add_to_cart_error", err)
	}

	e := events.New(events.ItemAdded, owner)
	e.ProductID = p.ID
	e.Quantity = max(req.Quantity, 1)
	events.Emit(ctx, h.Events, e)

	l.Info("item_added", "product_id", p.ID, "degraded", degraded)
	flash.Add(c, fmt.Sprintf("Added %s to cart!", p.Title))
	return c.Redirect(http.StatusSeeOther, CartPath)
}

func (h *CartHTTP) Increase(c echo.Context) error {
	return h.changeQuantity(c, "cart.increase", 1)
}

func (h *CartHTTP) Decrease(c echo.Context) error {
	return h.changeQuantity(c, "cart.decrease", -1)
}

// changeQuantity treats a missing line as a no-op so stale pages do not error out.
func (h *CartHTTP) changeQuantity(c echo.Context, name string, delta int) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", name)

	productID, err := productID(c)
	if err != nil {
		l.Warn("update_quantity_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	owner := identity.FromContext(c).Owner()
	err = h.Engine.For(owner).SetQuantityDelta(ctx, productID, delta)
	h.Metrics.CartOperation("set_quantity", backend(owner), err)
	switch {
	case errors.Is(err, cart.ErrLineNotFound):
		l.Info("update_quantity_skipped", "product_id", productID, "reason", "line not in cart")
		return c.Redirect(http.StatusSeeOther, CartPath)
	case err != nil:
		return storageFailure(c, l, h.Metrics, owner, "update_quantity_error", err)
	}

	e := events.New(events.QuantityChanged, owner)
	e.ProductID = productID
	e.Quantity = delta
	events.Emit(ctx, h.Events, e)
	return c.Redirect(http.StatusSeeOther, CartPath)
}

func (h *CartHTTP) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	productID, err := productID(c)
	if err != nil {
		l.Warn("remove_from_cart_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	owner := identity.FromContext(c).Owner()
	err = h.Engine.For(owner).RemoveItem(ctx, productID)
	h.Metrics.CartOperation("remove", backend(owner), err)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "remove_from_cart_error", err)
	}

	e := events.New(events.ItemRemoved, owner)
	e.ProductID = productID
	events.Emit(ctx, h.Events, e)
	return c.Redirect(http.StatusSeeOther, CartPath)
}

func (h *CartHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear")

	owner := identity.FromContext(c).Owner()
	err := h.Engine.For(owner).Clear(ctx)
	h.Metrics.CartOperation("clear", backend(owner), err)
	if err != nil {
		return storageFailure(c, l, h.Metrics, owner, "clear_cart_error", err)
	}

	events.Emit(ctx, h.Events, events.New(events.CartCleared, owner))
	flash.Add(c, noticeCartCleared)
	return c.Redirect(http.StatusSeeOther, CartPath)
}
