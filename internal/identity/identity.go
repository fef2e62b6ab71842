// Package identity resolves who is making a request: an account (from JWT cookies) or an
// anonymous guest (from a guest session cookie minted on first visit).
package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/account"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/tokens"
)

const contextKey = "identity"

type Identity struct {
	AccountID  uint
	Username   string
	GuestToken string
}

func (i Identity) Authenticated() bool {
	return i.AccountID != 0
}

// Owner is the cart owner for this identity.
func (i Identity) Owner() cart.Owner {
	if i.Authenticated() {
		return cart.Owner{AccountID: i.AccountID}
	}
	return cart.Owner{GuestToken: i.GuestToken}
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*account.Session, error)
}

type Resolver struct {
	Issuer    *tokens.Issuer
	Refresher Refresher
	Secure    bool
}

func NewResolver(issuer *tokens.Issuer, refresher Refresher, secure bool) *Resolver {
	return &Resolver{Issuer: issuer, Refresher: refresher, Secure: secure}
}

// Middleware never rejects a request. Invalid or expired credentials degrade the visitor to
// a guest; an expired access token is renewed from the refresh cookie when possible.
func (r *Resolver) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := Identity{GuestToken: r.guestToken(c)}

		if claims := r.authenticate(c); claims != nil {
			if accountID, err := tokens.AccountID(claims.RegisteredClaims); err == nil {
				id.AccountID = accountID
				id.Username = claims.Username
			}
		}

		Set(c, id)
		return next(c)
	}
}

func (r *Resolver) guestToken(c echo.Context) string {
	if v := readCookie(c, GuestCookie); v != "" {
		if _, err := uuid.Parse(v); err == nil {
			return v
		}
	}
	return NewGuest(c, r.Secure)
}

func (r *Resolver) authenticate(c echo.Context) *tokens.AccessClaims {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("mw", "identity")

	access := readCookie(c, AccessCookie)
	if access != "" {
		claims, err := r.Issuer.ParseAccess(access)
		if err == nil {
			return claims
		}
		if !errors.Is(err, jwt.ErrTokenExpired) {
			l.Warn("identity_invalid_access", "reason", "access token rejected", "error", err)
			ClearSession(c, r.Secure)
			return nil
		}
	}

	refresh := readCookie(c, RefreshCookie)
	if refresh == "" || r.Refresher == nil {
		if access != "" {
			ClearSession(c, r.Secure)
		}
		return nil
	}

	sess, err := r.Refresher.Refresh(ctx, refresh)
	if err != nil {
		l.Warn("identity_refresh_failed", "reason", "continuing as guest", "error", err)
		ClearSession(c, r.Secure)
		return nil
	}
	SetSession(c, sess, r.Secure)

	claims, err := r.Issuer.ParseAccess(sess.Access.Token)
	if err != nil {
		ClearSession(c, r.Secure)
		return nil
	}
	l.Info("identity_refreshed", "account_id", sess.Account.ID)
	return claims
}

func Set(c echo.Context, id Identity) {
	c.Set(contextKey, id)
	ctx := c.Request().Context()
	l := logging.FromContext(ctx)
	if id.Authenticated() {
		l = l.With("account_id", id.AccountID)
	} else {
		l = l.With("guest", true)
	}
	c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))
}

// FromContext returns the identity resolved by Middleware, or the zero Identity.
func FromContext(c echo.Context) Identity {
	id, _ := c.Get(contextKey).(Identity)
	return id
}
