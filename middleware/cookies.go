package middleware

import (
	"net/http"
	"time"

	notevault "github.com/MrEthical07/notevault"
)

// Session cookie names.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// CookieOptions controls the attributes of the session cookies.
type CookieOptions struct {
	// Secure marks cookies HTTPS-only. Production deployments set it.
	Secure bool
	Domain string
}

// SetSessionCookies writes both tokens as HttpOnly, SameSite=Strict
// cookies whose MaxAge matches the token lifetime.
func SetSessionCookies(w http.ResponseWriter, tokens notevault.Tokens, opts CookieOptions, now time.Time) {
	http.SetCookie(w, sessionCookie(AccessCookie, tokens.AccessToken, maxAge(tokens.AccessExpiresAt, now), opts))
	http.SetCookie(w, sessionCookie(RefreshCookie, tokens.RefreshToken, maxAge(tokens.RefreshExpiresAt, now), opts))
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, sessionCookie(AccessCookie, "", -1, opts))
	http.SetCookie(w, sessionCookie(RefreshCookie, "", -1, opts))
}

// ClearAccessCookie expires only the access cookie.
func ClearAccessCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, sessionCookie(AccessCookie, "", -1, opts))
}

// RefreshToken returns the refresh cookie value, or "".
func RefreshToken(r *http.Request) string {
	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func sessionCookie(name, value string, age int, opts CookieOptions) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   age,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func maxAge(expiresAt, now time.Time) int {
	secs := int(expiresAt.Sub(now) / time.Second)
	if secs <= 0 {
		return -1
	}
	return secs
}
