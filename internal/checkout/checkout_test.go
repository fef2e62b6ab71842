package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/session"
)

type stubProducts struct {
	products map[int]catalog.Product
}

func (s stubProducts) GetProduct(_ context.Context, id int) (catalog.Product, bool) {
	if p, ok := s.products[id]; ok {
		return p, false
	}
	return catalog.Product{ID: 1, Title: "Fallback", Price: 9.99}, true
}

var (
	lamp  = catalog.Product{ID: 10, Title: "Lamp", Price: 100}
	chair = catalog.Product{ID: 20, Title: "Chair", Price: 50}
)

func newFlow() *Flow {
	return NewFlow(stubProducts{products: map[int]catalog.Product{10: lamp, 20: chair}})
}

func stores(t *testing.T) map[string]cart.Store {
	return map[string]cart.Store{
		"guest":   cart.NewGuestStore(session.NewMemoryStore(time.Hour), "tok"),
		"account": cart.NewAccountStore(dbtest.Open(t), 1),
	}
}

func TestReview_EmptyCart(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := newFlow().Review(context.Background(), s)
			assert.ErrorIs(t, err, ErrEmptyCart)

			_, err = newFlow().Commit(context.Background(), s)
			assert.ErrorIs(t, err, ErrEmptyCart)
		})
	}
}

func TestReview_DoesNotMutate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.AddItem(ctx, lamp, 2))
			require.NoError(t, s.AddItem(ctx, chair, 1))

			summary, err := newFlow().Review(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, 250.0, summary.Total)
			assert.Equal(t, 3, summary.Count)
			assert.Len(t, summary.Lines, 2)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestCommit_CapturesTotalThenClears(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.AddItem(ctx, lamp, 2))
			require.NoError(t, s.AddItem(ctx, chair, 1))

			f := newFlow()
			fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			f.now = func() time.Time { return fixed }

			receipt, err := f.Commit(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, 250.0, receipt.Total)
			assert.Equal(t, fixed, receipt.CommittedAt)

			lines, err := s.ListItems(ctx)
			require.NoError(t, err)
			assert.Empty(t, lines)
		})
	}
}

func TestBuyNow_ReplacesCart(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.AddItem(ctx, lamp, 4))

			p, degraded, err := newFlow().BuyNow(ctx, s, chair.ID)
			require.NoError(t, err)
			assert.False(t, degraded)
			assert.Equal(t, chair.ID, p.ID)

			lines, err := s.ListItems(ctx)
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, chair.ID, lines[0].ProductID)
			assert.Equal(t, 1, lines[0].Quantity)
		})
	}
}

func TestBuyNow_DegradedProduct(t *testing.T) {
	s := cart.NewGuestStore(session.NewMemoryStore(time.Hour), "tok")

	p, degraded, err := newFlow().BuyNow(context.Background(), s, 999)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, 1, p.ID)

	total, err := s.Total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.99, total)
}
