// Package cart implements one cart contract over two backends: guest session state and
// account rows. Engine picks the backend for an owner and moves carts across login/logout.
package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/Skotchmaster/storefront/internal/catalog"
)

var (
	// ErrLineNotFound is returned when a quantity change targets a product that is not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrTransient marks storage contention. The caller may retry the request.
	ErrTransient = errors.New("cart storage temporarily unavailable")
)

type Line struct {
	ProductID int     `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Thumbnail string  `json:"thumbnail"`
	Quantity  int     `json:"quantity"`
}

func (l Line) Subtotal() float64 {
	return l.Price * float64(l.Quantity)
}

// Owner is exactly one of an account id or a guest session token.
type Owner struct {
	AccountID  uint
	GuestToken string
}

func (o Owner) Authenticated() bool {
	return o.AccountID != 0
}

// Store is a cart bound to a single owner.
type Store interface {
	AddItem(ctx context.Context, p catalog.Product, qty int) error
	SetQuantityDelta(ctx context.Context, productID, delta int) error
	RemoveItem(ctx context.Context, productID int) error
	Clear(ctx context.Context) error
	ListItems(ctx context.Context) ([]Line, error)
	Total(ctx context.Context) (float64, error)
	Replace(ctx context.Context, lines []Line) error
	Count(ctx context.Context) (int, error)
}

func LineFromProduct(p catalog.Product, qty int) Line {
	return Line{
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Thumbnail: p.Thumbnail,
		Quantity:  normalizeQty(qty),
	}
}

func Total(lines []Line) float64 {
	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func normalizeQty(qty int) int {
	if qty < 1 {
		return 1
	}
	return qty
}

func sortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
}

// collapse merges lines sharing a product id and drops non-positive quantities.
func collapse(lines []Line) []Line {
	byID := make(map[int]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if i, ok := byID[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		byID[l.ProductID] = len(out)
		out = append(out, l)
	}
	sortLines(out)
	return out
}
