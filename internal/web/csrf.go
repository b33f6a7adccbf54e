package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/hanko-field/greetings/internal/platform/httpx"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
)

type csrfKey struct{}

// CSRFToken returns the token issued for the current request.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// CSRF issues a double submit cookie and rejects unsafe requests whose header
// or form field does not echo it.
func CSRF(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(csrfCookieName); err == nil && validToken(c.Value) {
				token = c.Value
			}
			if token == "" {
				token = newCSRFToken()
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					Expires:  time.Now().Add(24 * time.Hour),
				})
			}

			if !isSafeMethod(r.Method) {
				presented := r.Header.Get(csrfHeaderName)
				if presented == "" {
					presented = r.PostFormValue(csrfFormField)
				}
				if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
					httpx.WriteError(r.Context(), w, httpx.NewError("invalid_csrf_token", "invalid CSRF token", http.StatusForbidden))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func validToken(value string) bool {
	if len(value) != 32 {
		return false
	}
	return strings.Trim(value, "0123456789abcdef") == ""
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
