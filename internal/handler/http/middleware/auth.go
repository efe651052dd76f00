package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/handler/http/response"
	"github.com/linkpulse/notifyhub/internal/pkg/jwt"
)

// InternalKeyHeader carries the shared key of internal callers
const InternalKeyHeader = "X-Internal-Key"

func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())

			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.HandleError(w, presence.ErrInvalidCredential)
				return
			}

			claims, err := token.AsMap(r.Context())
			if err != nil {
				response.HandleError(w, presence.ErrInvalidCredential)
				return
			}
			tokenType, ok := claims["type"].(string)
			if tokenType != jwt.TokenTypeAccess || !ok {
				response.HandleError(w, presence.ErrInvalidCredential)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// InternalKeyRequired admits requests presenting the shared internal key
func InternalKeyRequired(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(InternalKeyHeader)
			if presented == "" {
				response.HandleError(w, presence.ErrMissingCredential)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				response.HandleError(w, presence.ErrInvalidCredential)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
