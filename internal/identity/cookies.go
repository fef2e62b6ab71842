package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/account"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
	GuestCookie   = "guest_session"
)

// CreateCookie builds an HttpOnly cookie. A zero expiry makes it a browser-session cookie.
func CreateCookie(name, value string, exp time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession writes the access and refresh cookies of an authenticated session.
func SetSession(c echo.Context, sess *account.Session, secure bool) {
	c.SetCookie(CreateCookie(AccessCookie, sess.Access.Token, sess.Access.ExpiresAt, secure))
	c.SetCookie(CreateCookie(RefreshCookie, sess.Refresh.Token, sess.Refresh.ExpiresAt, secure))
}

func ClearSession(c echo.Context, secure bool) {
	c.SetCookie(DeleteCookie(AccessCookie, secure))
	c.SetCookie(DeleteCookie(RefreshCookie, secure))
}

// NewGuest mints a guest token and sets it as a browser-session cookie.
func NewGuest(c echo.Context, secure bool) string {
	token := uuid.NewString()
	c.SetCookie(CreateCookie(GuestCookie, token, time.Time{}, secure))
	return token
}

func readCookie(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
