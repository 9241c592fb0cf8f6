package appMiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-task-tracker/internal/api"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

type contextKey string

// UserKey holds the authenticated *types.User for the request.
const UserKey contextKey = "currentUser"

// TokenAuthenticator resolves a bearer token to its user. Implemented by the
// auth service; declared here so the middleware does not depend on it.
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*types.User, error)
}

// CredentialVerifier checks a username/email + password pair. Implemented by
// the auth service.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identifier, password string) (*types.User, error)
}

// Authenticate validates the "Authorization: Bearer <token>" header against
// the token store and puts the resolved user on the request context. Expiry
// is checked on every request; there is no refresh on lookup.
func Authenticate(auth TokenAuthenticator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				l.WarnContext(ctx, "Missing Authorization header")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authorization header required")
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				l.WarnContext(ctx, "Invalid Authorization header format")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			user, err := auth.AuthenticateToken(ctx, headerParts[1])
			if err != nil {
				switch {
				case errors.Is(err, types.ErrTokenExpired):
					l.WarnContext(ctx, "Token expired")
					api.ErrorResponse(w, r, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, types.ErrUnauthenticated):
					l.WarnContext(ctx, "Token not recognized")
					api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token")
				default:
					l.ErrorContext(ctx, "Token authentication failed", slog.Any("error", err))
					api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication failed")
				}
				return
			}

			ctx = context.WithValue(ctx, UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BasicAuth validates HTTP Basic credentials (username or email + password)
// and puts the resolved user on the request context. Used only by the token
// issuance endpoint.
func BasicAuth(verifier CredentialVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "BasicAuth"))

			identifier, password, ok := r.BasicAuth()
			if !ok {
				l.WarnContext(ctx, "Missing or malformed Basic auth header")
				w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Basic authentication required")
				return
			}

			user, err := verifier.VerifyCredentials(ctx, identifier, password)
			if err != nil {
				if errors.Is(err, types.ErrUnauthenticated) {
					l.WarnContext(ctx, "Invalid credentials", slog.String("identifier", identifier))
					api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid username or password")
					return
				}
				l.ErrorContext(ctx, "Credential verification failed", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication failed")
				return
			}

			ctx = context.WithValue(ctx, UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns the user placed on the context by Authenticate
// or BasicAuth.
func GetUserFromContext(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(UserKey).(*types.User)
	return user, ok
}
