package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/flash"
	"github.com/Skotchmaster/storefront/internal/logging"
)

type Catalog interface {
	ListProducts(ctx context.Context, f catalog.Filter) catalog.Listing
	GetProduct(ctx context.Context, id int) (catalog.Product, bool)
}

type ProductHTTP struct {
	Catalog Catalog
}

type productList struct {
	Products []catalog.Product `json:"products"`
	Degraded bool              `json:"degraded"`
	Query    string            `json:"query,omitempty"`
	Category string            `json:"category,omitempty"`
	Page     int               `json:"page,omitempty"`
	Notices  []string          `json:"notices"`
}

type productDetail struct {
	Product  catalog.Product `json:"product"`
	Degraded bool            `json:"degraded"`
	Notices  []string        `json:"notices"`
}

func (h *ProductHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "products.list")

	f := catalog.Filter{
		Query:    strings.TrimSpace(c.QueryParam("q")),
		Category: strings.TrimSpace(c.QueryParam("category")),
	}
	if p := c.QueryParam("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			l.Warn("list_products_error", "status", 400, "reason", "invalid page", "page", p)
			return errorJSON(c, http.StatusBadRequest, "invalid page")
		}
		f.Page = page
	}
	listing := h.Catalog.ListProducts(ctx, f)
	if listing.Degraded {
		flash.Add(c, noticeCatalogDegraded)
	}

	l.Info("products_listed", "count", len(listing.Products), "degraded", listing.Degraded)
	return c.JSON(http.StatusOK, productList{
		Products: listing.Products,
		Degraded: listing.Degraded,
		Query:    f.Query,
		Category: f.Category,
		Page:     f.Page,
		Notices:  flash.Consume(c),
	})
}

func (h *ProductHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "products.get")

	id, err := productID(c)
	if err != nil {
		l.Warn("get_product_error", "status", 400, "error", err)
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	p, degraded := h.Catalog.GetProduct(ctx, id)
	if degraded {
		flash.Add(c, noticeCatalogDegraded)
	}
	return c.JSON(http.StatusOK, productDetail{Product: p, Degraded: degraded, Notices: flash.Consume(c)})
}
