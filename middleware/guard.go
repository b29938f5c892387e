package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	notevault "github.com/MrEthical07/notevault"
)

type authResultContextKey struct{}

// Validator is the part of the engine a guard needs.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*notevault.AuthResult, error)
}

// AuthResultFromContext returns the identity attached by [Guard].
func AuthResultFromContext(ctx context.Context) (*notevault.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*notevault.AuthResult)
	return res, ok
}

// WithAuthResult attaches res to ctx the way [Guard] does.
func WithAuthResult(ctx context.Context, res *notevault.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard admits requests carrying a valid access token, read from the
// access cookie or an Authorization bearer header. Rejections are 401 with
// a JSON body naming the token failure reason.
func Guard(engine Validator) func(http.Handler) http.Handler {
	return GuardWithCookies(engine, CookieOptions{})
}

// GuardWithCookies is Guard that also expires a rejected access cookie,
// written with opts so it replaces the cookie set at login. The refresh
// cookie is left alone so the client can still refresh.
func GuardWithCookies(engine Validator, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeUnauthorized(w, notevault.ErrEngineNotReady)
				return
			}

			token := AccessToken(r)
			if token == "" {
				writeUnauthorized(w, notevault.ErrTokenMissing)
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				if fromCookie(r, token) && notevault.TokenErrorReason(err) != "" {
					ClearAccessCookie(w, opts)
				}
				writeUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// AccessToken returns the access token presented with r. The cookie wins
// over the header.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func fromCookie(r *http.Request, token string) bool {
	c, err := r.Cookie(AccessCookie)
	return err == nil && c.Value == token
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	body := map[string]string{"message": "Not authenticated"}
	if reason := notevault.TokenErrorReason(err); reason != "" {
		body["reason"] = reason
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
