package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/session"
)

type guestDocument struct {
	Lines []Line `json:"lines"`
}

// GuestStore keeps an anonymous cart as a single JSON document in session state.
type GuestStore struct {
	sessions session.Store
	token    string
}

func NewGuestStore(sessions session.Store, token string) *GuestStore {
	return &GuestStore{sessions: sessions, token: token}
}

func GuestKey(token string) string {
	return "guest:" + token + ":cart"
}

func (s *GuestStore) AddItem(ctx context.Context, p catalog.Product, qty int) error {
	qty = normalizeQty(qty)
	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		for i := range lines {
			if lines[i].ProductID == p.ID {
				lines[i].Quantity += qty
				return lines, nil
			}
		}
		return append(lines, LineFromProduct(p, qty)), nil
	})
}

func (s *GuestStore) SetQuantityDelta(ctx context.Context, productID, delta int) error {
	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		for i := range lines {
			if lines[i].ProductID != productID {
				continue
			}
			lines[i].Quantity += delta
			if lines[i].Quantity <= 0 {
				return append(lines[:i], lines[i+1:]...), nil
			}
			return lines, nil
		}
		return nil, ErrLineNotFound
	})
}

func (s *GuestStore) RemoveItem(ctx context.Context, productID int) error {
	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		out := lines[:0]
		for _, l := range lines {
			if l.ProductID != productID {
				out = append(out, l)
			}
		}
		return out, nil
	})
}

func (s *GuestStore) Clear(ctx context.Context) error {
	return classifySession(s.sessions.Delete(ctx, GuestKey(s.token)))
}

func (s *GuestStore) ListItems(ctx context.Context) ([]Line, error) {
	data, err := s.sessions.Load(ctx, GuestKey(s.token))
	if err != nil {
		return nil, classifySession(err)
	}
	lines, err := decodeGuest(data)
	if err != nil {
		return nil, err
	}
	sortLines(lines)
	return lines, nil
}

func (s *GuestStore) Total(ctx context.Context) (float64, error) {
	lines, err := s.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	return Total(lines), nil
}

func (s *GuestStore) Count(ctx context.Context) (int, error) {
	lines, err := s.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	return Count(lines), nil
}

func (s *GuestStore) Replace(ctx context.Context, lines []Line) error {
	next := collapse(append([]Line(nil), lines...))
	return s.mutate(ctx, func([]Line) ([]Line, error) {
		return next, nil
	})
}

// take reads and deletes the guest document in one update.
func (s *GuestStore) take(ctx context.Context) ([]Line, error) {
	var taken []Line
	err := s.sessions.Update(ctx, GuestKey(s.token), func(current []byte) ([]byte, error) {
		lines, err := decodeGuest(current)
		if err != nil {
			return nil, err
		}
		taken = lines
		return nil, nil
	})
	if err != nil {
		return nil, classifySession(err)
	}
	sortLines(taken)
	return taken, nil
}

// restore adds lines back, summing with anything written since take.
func (s *GuestStore) restore(ctx context.Context, lines []Line) error {
	return s.mutate(ctx, func(current []Line) ([]Line, error) {
		return collapse(append(current, lines...)), nil
	})
}

func (s *GuestStore) mutate(ctx context.Context, fn func([]Line) ([]Line, error)) error {
	err := s.sessions.Update(ctx, GuestKey(s.token), func(current []byte) ([]byte, error) {
		lines, err := decodeGuest(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(lines)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			return nil, nil
		}
		sortLines(next)
		return json.Marshal(guestDocument{Lines: next})
	})
	return classifySession(err)
}

func decodeGuest(data []byte) ([]Line, error) {
	if len(data) == 0 {
		return []Line{}, nil
	}
	var doc guestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	if doc.Lines == nil {
		doc.Lines = []Line{}
	}
	return doc.Lines, nil
}

func classifySession(err error) error {
	if err == nil || errors.Is(err, ErrLineNotFound) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, session.ErrConflict) || errors.As(err, &netErr) {
		return fmt.Errorf("guest cart: %w: %w", ErrTransient, err)
	}
	return fmt.Errorf("guest cart: %w", err)
}
