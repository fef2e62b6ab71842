package cart

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/session"
)

// HandoffPolicy decides what happens to a guest cart when its visitor logs in.
type HandoffPolicy string

const (
	// PolicyAccountWins keeps the account cart as is and discards the guest cart.
	PolicyAccountWins HandoffPolicy = "account_wins"
	// PolicyMerge adds guest lines into the account cart, summing quantities per product.
	PolicyMerge HandoffPolicy = "merge"
)

func ParseHandoffPolicy(s string) (HandoffPolicy, error) {
	switch HandoffPolicy(s) {
	case "", PolicyAccountWins:
		return PolicyAccountWins, nil
	case PolicyMerge:
		return PolicyMerge, nil
	default:
		return "", fmt.Errorf("unknown cart handoff policy %q", s)
	}
}

// HandoffResult reports what a login did to the guest cart.
type HandoffResult struct {
	Policy      HandoffPolicy
	GuestLines  int
	MergedLines int
}

type Engine struct {
	db       *gorm.DB
	sessions session.Store
	policy   HandoffPolicy
}

func NewEngine(gdb *gorm.DB, sessions session.Store, policy HandoffPolicy) *Engine {
	if policy == "" {
		policy = PolicyAccountWins
	}
	return &Engine{db: gdb, sessions: sessions, policy: policy}
}

func (e *Engine) Policy() HandoffPolicy {
	return e.policy
}

// For returns the store that owns the cart of o. It is the only place that branches on
// whether the visitor is authenticated.
func (e *Engine) For(o Owner) Store {
	if o.Authenticated() {
		return NewAccountStore(e.db, o.AccountID)
	}
	return NewGuestStore(e.sessions, o.GuestToken)
}

func (e *Engine) Count(ctx context.Context, o Owner) (int, error) {
	return e.For(o).Count(ctx)
}

// Login moves the cart from the guest session to the account according to the policy.
// The guest document is taken out of the session before anything is merged, so a retried
// login cannot add the same lines twice. A failed merge puts the lines back.
func (e *Engine) Login(ctx context.Context, guestToken string, accountID uint) (HandoffResult, error) {
	res := HandoffResult{Policy: e.policy}
	if guestToken == "" {
		return res, nil
	}

	guest := NewGuestStore(e.sessions, guestToken)
	lines, err := guest.take(ctx)
	if err != nil {
		return res, err
	}
	res.GuestLines = len(lines)

	if e.policy == PolicyMerge && len(lines) > 0 {
		if err := NewAccountStore(e.db, accountID).mergeLines(ctx, lines); err != nil {
			if rerr := guest.restore(ctx, lines); rerr != nil {
				return res, errors.Join(err, fmt.Errorf("restore guest cart: %w", rerr))
			}
			return res, err
		}
		res.MergedLines = len(lines)
	}
	return res, nil
}

// Logout hands the visitor a fresh, empty guest cart. Account lines stay with the account.
func (e *Engine) Logout(ctx context.Context, newGuestToken string) (Owner, error) {
	o := Owner{GuestToken: newGuestToken}
	if err := NewGuestStore(e.sessions, newGuestToken).Clear(ctx); err != nil {
		return o, err
	}
	return o, nil
}
