package auth

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AuthCookieName    = "sentra_session"
	CSRFCookieName    = "sentra_csrf"
	RefreshCookieName = "sentra_refresh"
)

// SECURE_COOKIES overrides detection; otherwise the proxy header and the
// TLS state of the connection decide.
func shouldUseSecureCookies(c *gin.Context) bool {
	if value := strings.ToLower(strings.TrimSpace(os.Getenv("SECURE_COOKIES"))); value != "" {
		return value != "false"
	}
	if c != nil {
		if proto := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto"))); proto == "https" {
			return true
		}
	}
	return c.Request.TLS != nil
}

func setCookie(c *gin.Context, name, value string, expiry time.Time, httpOnly bool, sameSite http.SameSite) {
	maxAge := int(time.Until(expiry).Seconds())
	if value == "" {
		expiry = time.Unix(0, 0)
		maxAge = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiry,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   shouldUseSecureCookies(c),
		SameSite: sameSite,
	})
}

// SetAuthCookie issues the session cookie together with its CSRF twin.
// The CSRF cookie is readable from script so the frontend can echo it
// back in the X-CSRF-Token header.
func SetAuthCookie(c *gin.Context, token string, expiry time.Time, csrfToken string) {
	setCookie(c, AuthCookieName, token, expiry, true, http.SameSiteLaxMode)
	setCookie(c, CSRFCookieName, csrfToken, expiry, false, http.SameSiteLaxMode)
}

// SetRefreshCookie issues the long-lived refresh token cookie.
func SetRefreshCookie(c *gin.Context, token string, expiry time.Time) {
	setCookie(c, RefreshCookieName, token, expiry, true, http.SameSiteLaxMode)
}

// ClearAuthCookie expires the session and CSRF cookies.
func ClearAuthCookie(c *gin.Context) {
	setCookie(c, AuthCookieName, "", time.Unix(0, 0), true, http.SameSiteLaxMode)
	setCookie(c, CSRFCookieName, "", time.Unix(0, 0), false, http.SameSiteStrictMode)
}

// ClearRefreshCookie expires the refresh token cookie.
func ClearRefreshCookie(c *gin.Context) {
	setCookie(c, RefreshCookieName, "", time.Unix(0, 0), true, http.SameSiteLaxMode)
}
