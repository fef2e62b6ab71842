// Package checkout walks a resolved cart through review and a simulated payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
)

var ErrEmptyCart = errors.New("cart is empty")

type ProductSource interface {
	GetProduct(ctx context.Context, id int) (catalog.Product, bool)
}

type Summary struct {
	Lines []cart.Line `json:"lines"`
	Total float64     `json:"total"`
	Count int         `json:"count"`
}

type Receipt struct {
	Summary
	CommittedAt time.Time `json:"committed_at"`
}

type Flow struct {
	products ProductSource
	now      func() time.Time
}

func NewFlow(products ProductSource) *Flow {
	return &Flow{products: products, now: time.Now}
}

// Review returns the cart and its total without changing anything.
func (f *Flow) Review(ctx context.Context, store cart.Store) (Summary, error) {
	lines, err := store.ListItems(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("review: %w", err)
	}
	if len(lines) == 0 {
		return Summary{}, ErrEmptyCart
	}
	return Summary{Lines: lines, Total: cart.Total(lines), Count: cart.Count(lines)}, nil
}

// Commit captures the total and then empties the cart. No payment is taken.
func (f *Flow) Commit(ctx context.Context, store cart.Store) (Receipt, error) {
	summary, err := f.Review(ctx, store)
	if err != nil {
		return Receipt{}, err
	}
	if err := store.Clear(ctx); err != nil {
		return Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return Receipt{Summary: summary, CommittedAt: f.now().UTC()}, nil
}

// BuyNow replaces the whole cart with a single unit of the product.
func (f *Flow) BuyNow(ctx context.Context, store cart.Store, productID int) (catalog.Product, bool, error) {
	p, degraded := f.products.GetProduct(ctx, productID)
	if err := store.Replace(ctx, []cart.Line{cart.LineFromProduct(p, 1)}); err != nil {
		return p, degraded, fmt.Errorf("buy now: %w", err)
	}
	return p, degraded, nil
}
