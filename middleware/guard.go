package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
)

// PrincipalSource validates an access token.
type PrincipalSource interface {
	Authenticate(ctx context.Context, accessToken string) (authflow.Principal, error)
}

// RejectFunc writes the response for a request the guard refused. err is
// nil when the Authorization header was missing or malformed.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

type principalContextKey struct{}

type accessTokenContextKey struct{}

func PrincipalFromContext(ctx context.Context) (authflow.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authflow.Principal)
	return p, ok
}

// AccessTokenFromContext returns the bearer token the guard accepted.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenContextKey{}).(string)
	return token, ok && token != ""
}

// Guard requires a valid bearer token and injects the principal and token
// into the request context. A nil reject writes a plain 401.
func Guard(source PrincipalSource, reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				reject(w, r, nil)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, r, nil)
				return
			}

			principal, err := source.Authenticate(r.Context(), token)
			if err != nil {
				reject(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			ctx = context.WithValue(ctx, accessTokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
