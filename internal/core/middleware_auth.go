package core

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"talentsphere/internal/types"
)

// AuthMiddleware authenticates every /v1 request.
//
// The bearer token is checked against the admin API key first (constant-time
// compare); a match yields an admin Actor. Otherwise the token is resolved to
// a user Actor by the injected Authenticator. Failures return 401 with
// distinct codes for a missing versus an invalid token.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"bearer token is required", nil))
			return
		}

		if s.isAdminKey(token) {
			ctx := types.WithActor(r.Context(), types.Actor{Type: types.ActorTypeAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if s.Authenticator == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"invalid authentication token", nil))
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) {
				Error(w, r, appErr)
				return
			}
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"invalid authentication token", err))
			return
		}
		if actor == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"invalid authentication token", nil))
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a route subtree to admin actors. Mounted inside
// AuthMiddleware so an Actor is always present on success paths.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || !actor.IsAdmin() {
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdminRequired,
				"admin access required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdminKey(token string) bool {
	key := s.Config.Security.AdminAPIKey
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

// extractBearerToken parses "Bearer <token>" (scheme case-insensitive per
// RFC 7235). Returns empty on any other shape.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
