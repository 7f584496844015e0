package middleware

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	// The refresh cookie is only sent to the endpoints that consume it.
	RefreshCookiePath = "/v1/auth"
)

// CookieWriter sets and clears the two credential cookies.
type CookieWriter struct {
	secure bool
}

func NewCookieWriter(secure bool) *CookieWriter {
	return &CookieWriter{secure: secure}
}

func (c *CookieWriter) SetAccessToken(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, AccessTokenCookie, token, "/", ttl)
}

func (c *CookieWriter) SetRefreshToken(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, RefreshTokenCookie, token, RefreshCookiePath, ttl)
}

func (c *CookieWriter) Clear(w http.ResponseWriter) {
	c.clear(w, AccessTokenCookie, "/")
	c.clear(w, RefreshTokenCookie, RefreshCookiePath)
}

func (c *CookieWriter) set(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *CookieWriter) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshTokenFromCookie returns "" when the cookie is absent.
func RefreshTokenFromCookie(r *http.Request) string {
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
