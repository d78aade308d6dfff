package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	// RefreshPath scopes the refresh cookie to the endpoint that consumes it.
	RefreshPath = "/api/refresh"
)

// SessionCookies writes the http-only token pair issued at login.
type SessionCookies struct {
	Domain string
	Secure bool
}

func NewSessionCookies(domain string, secure bool) *SessionCookies {
	return &SessionCookies{Domain: domain, Secure: secure}
}

func (s *SessionCookies) set(w http.ResponseWriter, name, value, path string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   s.Domain,
		MaxAge:   maxAge,
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetPair stores both tokens; each cookie lives as long as its token.
func (s *SessionCookies) SetPair(c *gin.Context, access string, accessExp time.Time, refresh string, refreshExp time.Time) {
	s.set(c.Writer, AccessCookie, access, "/", secondsUntil(accessExp))
	s.set(c.Writer, RefreshCookie, refresh, RefreshPath, secondsUntil(refreshExp))
}

// Clear expires both cookies.
func (s *SessionCookies) Clear(c *gin.Context) {
	s.set(c.Writer, AccessCookie, "", "/", -1)
	s.set(c.Writer, RefreshCookie, "", RefreshPath, -1)
}

// secondsUntil never returns 0, which net/http would treat as a session
// cookie; an already expired token gets -1.
func secondsUntil(exp time.Time) int {
	sec := int(time.Until(exp).Seconds())
	if sec <= 0 {
		return -1
	}
	return sec
}
