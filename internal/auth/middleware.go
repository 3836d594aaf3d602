package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-auth-service/internal/httputil"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	PrincipalContextKey ContextKey = "principal"
)

// PrincipalResolver turns a bearer token into a principal; *Service implements it
type PrincipalResolver interface {
	ParseSessionToken(token string) (uuid.UUID, error)
	Principal(ctx context.Context, id uuid.UUID) (*Principal, error)
}

// Middleware guards protected routes
type Middleware struct {
	resolver PrincipalResolver
}

func NewMiddleware(resolver PrincipalResolver) *Middleware {
	return &Middleware{resolver: resolver}
}

// RequireAuth returns a middleware that admits verified users whose role is
// one of roles. With no roles, any verified user is admitted.
func (m *Middleware) RequireAuth(roles ...user.Role) func(http.Handler) http.Handler {
	allowed := make(map[user.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.GetLoggerFromContext(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, r, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				reject(w, r, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}

			userID, err := m.resolver.ParseSessionToken(parts[1])
			if err != nil {
				if errors.Is(err, ErrExpiredToken) {
					reject(w, r, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
					return
				}
				reject(w, r, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
				return
			}

			principal, err := m.resolver.Principal(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					logger.Warn("token refers to unknown user", "user_id", userID)
					reject(w, r, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
					return
				}
				reject(w, r, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
				return
			}

			if !principal.Verified {
				reject(w, r, "email not verified", httputil.CodeEmailNotVerified, http.StatusUnauthorized)
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[principal.Role]; !ok {
					logger.Warn("forbidden", "user_id", userID, "role", principal.Role)
					reject(w, r, "forbidden", httputil.CodeForbidden, http.StatusForbidden)
					return
				}
			}

			logging.AddRequestFields(r.Context(), "user_id", principal.ID, "role", principal.Role)

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			ctx = logging.WithContext(ctx, logger.With("user_id", principal.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// reject writes the guard's error response and tags the request log with code
func reject(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	logging.AddRequestFields(r.Context(), "auth_error", code)
	httputil.RespondErrorWithCode(w, message, code, status)
}

// GetPrincipalFromContext extracts the authenticated principal from the request context
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := GetPrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return p.ID, true
}
