// Package flash carries one-shot notices across a redirect in a short-lived cookie.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	CookieName  = "flash"
	pendingKey  = "flash_pending"
	consumedKey = "flash_consumed"
	maxNotices  = 8
)

// Add queues a notice for the next response that reads notices.
func Add(c echo.Context, msg string) {
	pending, _ := c.Get(pendingKey).([]string)
	if len(pending) >= maxNotices {
		pending = pending[1:]
	}
	pending = append(pending, msg)
	c.Set(pendingKey, pending)
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    encode(append(incoming(c), pending...)),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Consume returns every notice queued by earlier requests and this one, then clears them.
func Consume(c echo.Context) []string {
	msgs := append(incoming(c), pendingNotices(c)...)
	c.Set(pendingKey, []string(nil))
	c.Set(consumedKey, true)
	if len(msgs) > 0 {
		c.SetCookie(&http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if msgs == nil {
		msgs = []string{}
	}
	return msgs
}

func pendingNotices(c echo.Context) []string {
	pending, _ := c.Get(pendingKey).([]string)
	return pending
}

func incoming(c echo.Context) []string {
	if consumed, _ := c.Get(consumedKey).(bool); consumed {
		return nil
	}
	ck, err := c.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	return decode(ck.Value)
}

func encode(msgs []string) string {
	b, _ := json.Marshal(msgs)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(v string) []string {
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil
	}
	var msgs []string
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil
	}
	if len(msgs) > maxNotices {
		msgs = msgs[len(msgs)-maxNotices:]
	}
	return msgs
}
