package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/account"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/flash"
	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/validate"
)

const (
	noticeRegistered   = "Registration successful! You are logged in."
	noticeBadLogin     = "Invalid credentials!"
	noticeMismatch     = "Passwords do not match!"
	noticeEmailTaken   = "Email already registered!"
	noticeMissingField = "Please fill all fields!"
	noticeLoggedOut    = "Logged out successfully!"
)

type AuthHTTP struct {
	Accounts *account.Service
	Engine   *cart.Engine
	Events   events.Publisher
	Metrics  *metrics.Collector
	Secure   bool
}

type sessionView struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Username string   `json:"username,omitempty"`
	Handoff  string   `json:"handoff,omitempty"`
	Notices  []string `json:"notices"`
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req account.RegisterInput
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "cannot bind the request", "error", err)
		return errorJSON(c, http.StatusBadRequest, noticeMissingField)
	}

	sess, err := h.Accounts.Register(ctx, req)
	if err != nil {
		var ve *validate.ValidationError
		switch {
		case errors.As(err, &ve):
			l.Warn("register_error", "status", 400, "error", err)
			return c.JSON(http.StatusBadRequest, Response{Status: "error", Message: noticeMissingField, Fields: ve.Fields()})
		case errors.Is(err, account.ErrPasswordMismatch):
			return errorJSON(c, http.StatusBadRequest, noticeMismatch)
		case errors.Is(err, account.ErrEmailTaken):
			return errorJSON(c, http.StatusConflict, noticeEmailTaken)
		default:
			l.Error("register_error", "status", 500, "error", err)
			return errorJSON(c, http.StatusInternalServerError, "internal error")
		}
	}

	return h.startSession(c, l, sess, http.StatusCreated, noticeRegistered)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req account.LoginInput
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "cannot bind the request", "error", err)
		return errorJSON(c, http.StatusBadRequest, noticeMissingField)
	}

	sess, err := h.Accounts.Login(ctx, req)
	if err != nil {
		var ve *validate.ValidationError
		switch {
		case errors.As(err, &ve):
			l.Warn("login_error", "status", 400, "error", err)
			return c.JSON(http.StatusBadRequest, Response{Status: "error", Message: noticeMissingField, Fields: ve.Fields()})
		case errors.Is(err, account.ErrInvalidCredentials):
			return errorJSON(c, http.StatusUnauthorized, noticeBadLogin)
		default:
			l.Error("login_error", "status", 500, "error", err)
			return errorJSON(c, http.StatusInternalServerError, "internal error")
		}
	}

	return h.startSession(c, l, sess, http.StatusOK, fmt.Sprintf("Welcome %s!", sess.Account.Username))
}

// startSession sets the auth cookies and hands the guest cart over to the account.
// A failed handoff leaves the guest state untouched and does not fail the login.
func (h *AuthHTTP) startSession(c echo.Context, l *slog.Logger, sess *account.Session, code int, msg string) error {
	ctx := c.Request().Context()
	guest := identity.FromContext(c)

	res, err := h.Engine.Login(ctx, guest.GuestToken, sess.Account.ID)
	handoff := ""
	if err != nil {
		if errors.Is(err, cart.ErrTransient) {
			h.Metrics.TransientFailure("guest")
		}
		l.Error("cart_handoff_error", "account_id", sess.Account.ID, "policy", string(h.Engine.Policy()), "error", err)
	} else {
		handoff = string(res.Policy)
		h.Metrics.Handoff(handoff)
		e := events.New(events.CartHandoff, cart.Owner{AccountID: sess.Account.ID})
		e.Policy = handoff
		e.Quantity = res.MergedLines
		events.Emit(ctx, h.Events, e)
		l.Info("cart_handoff", "account_id", sess.Account.ID, "policy", handoff,
			"guest_lines", res.GuestLines, "merged_lines", res.MergedLines)
	}

	identity.SetSession(c, sess, h.Secure)
	identity.Set(c, identity.Identity{
		AccountID:  sess.Account.ID,
		Username:   sess.Account.Username,
		GuestToken: guest.GuestToken,
	})

	l.Info("session_started", "account_id", sess.Account.ID)
	return c.JSON(code, sessionView{
		Status:   "ok",
		Message:  msg,
		Username: sess.Account.Username,
		Handoff:  handoff,
		Notices:  flash.Consume(c),
	})
}

// Logout revokes the refresh token, drops the auth cookies and starts a fresh guest session.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	if ck, err := c.Cookie(identity.RefreshCookie); err == nil {
		if err := h.Accounts.Logout(ctx, ck.Value); err != nil {
			l.Error("logout_error", "reason", "cannot revoke refresh token", "error", err)
		}
	}
	identity.ClearSession(c, h.Secure)

	token := identity.NewGuest(c, h.Secure)
	owner, err := h.Engine.Logout(ctx, token)
	if err != nil {
		l.Warn("logout_error", "reason", "cannot reset guest cart", "error", err)
	}
	identity.Set(c, identity.Identity{GuestToken: owner.GuestToken})

	flash.Add(c, noticeLoggedOut)
	l.Info("logged_out")
	return c.JSON(http.StatusOK, Response{Status: "ok", Message: noticeLoggedOut})
}
