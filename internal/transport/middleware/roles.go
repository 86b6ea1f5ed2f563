package middleware

import (
	"log/slog"
	"net/http"

	"github.com/approvalflow/approval-gateway/internal/auth"
)

// RequireRole guards an API route group: the auth guard must already have
// placed a user in the context, and that user must hold one of the given
// roles. Authenticated users without the role get 403, never 401.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok || user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !user.HasAnyRole(roles...) {
				slog.Warn("access denied: user lacks required role",
					"user_id", user.ID,
					"required_roles", roles,
					"path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRolePage is the page-route variant: an authenticated user without
// the role is redirected to the unauthorized page instead of receiving a
// bare 403 body.
func RequireRolePage(fallback string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok || user == nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			if !user.HasAnyRole(roles...) {
				slog.Warn("access denied: redirecting to fallback page",
					"user_id", user.ID,
					"required_roles", roles,
					"path", r.URL.Path,
					"fallback", fallback)
				http.Redirect(w, r, fallback, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
