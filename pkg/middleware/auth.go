package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/principal"
)

type contextKey string

const principalKey contextKey = "principal"

// UserLookup resolves a username from the fronting proxy into a principal.
type UserLookup interface {
	PrincipalByUsername(ctx context.Context, username string) (*principal.Principal, error)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *principal.Principal {
	p, _ := ctx.Value(principalKey).(*principal.Principal)
	return p
}

// ContextWithPrincipal injects a principal, used by handler tests.
func ContextWithPrincipal(ctx context.Context, p *principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// AuthMiddleware trusts the X-Auth-Username header set by the fronting
// auth proxy and resolves it into a principal. Requests without the
// header are rejected; this service never sees credentials itself.
func AuthMiddleware(lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := r.Header.Get("X-Auth-Username")
			if username == "" {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			p, err := lookup.PrincipalByUsername(r.Context(), username)
			if err != nil || p == nil {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "Unauthorized", "unknown user")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}
