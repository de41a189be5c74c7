package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/domain"
)

// SessionCookie writes and reads the cookie that carries the session id
type SessionCookie struct {
	Name   string
	Secure bool
}

// Read returns the session id sent by the client, or ""
func (s SessionCookie) Read(c *gin.Context) string {
	value, err := c.Cookie(s.Name)
	if err != nil {
		return ""
	}
	return value
}

// Set issues the cookie for session. Remembered sessions outlive the browser.
func (s SessionCookie) Set(c *gin.Context, session *domain.Session) {
	maxAge := 0
	if session.Remember {
		maxAge = int(time.Until(session.ExpiresAt).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.Name, session.ID, maxAge, "/", "", s.Secure, true)
}

func (s SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.Name, "", -1, "/", "", s.Secure, true)
}
