// internal/api/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/core"
)

// APIKeyAuth returns middleware that validates the X-API-Key header or a
// bearer token. If apiKey is empty, authentication is disabled.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := providedKey(r)
			if providedKey == "" {
				response.Fail(w, core.Errorf(core.ErrUnauthorized, "no API key provided"))
				return
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				response.Fail(w, core.WrapError(core.ErrUnauthorized, nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func providedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
