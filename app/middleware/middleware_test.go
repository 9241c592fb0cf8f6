package appMiddleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

type stubAuthenticator struct {
	user *types.User
	err  error
}

func (s *stubAuthenticator) AuthenticateToken(context.Context, string) (*types.User, error) {
	return s.user, s.err
}

type stubVerifier struct {
	user *types.User
	err  error
}

func (s *stubVerifier) VerifyCredentials(context.Context, string, string) (*types.User, error) {
	return s.user, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoUser writes the username found on the context, proving the middleware
// passed it through.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(user.Username))
})

func TestAuthenticate(t *testing.T) {
	alice := &types.User{ID: 1, Username: "alice"}

	tests := []struct {
		name       string
		header     string
		authErr    error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid bearer token",
			header:     "Bearer sometoken",
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Authorization header required",
		},
		{
			name:       "wrong scheme",
			header:     "Basic YWxpY2U6c2VjcmV0",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Bearer {token}",
		},
		{
			name:       "unknown token",
			header:     "Bearer bogus",
			authErr:    types.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "expired token",
			header:     "Bearer old",
			authErr:    types.ErrTokenExpired,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Token has expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &stubAuthenticator{user: alice, err: tt.authErr}
			if tt.authErr != nil {
				auth.user = nil
			}
			handler := Authenticate(auth, discardLogger())(echoUser)

			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestBasicAuth(t *testing.T) {
	alice := &types.User{ID: 1, Username: "alice"}

	t.Run("valid credentials pass the user through", func(t *testing.T) {
		handler := BasicAuth(&stubVerifier{user: alice}, discardLogger())(echoUser)

		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		req.SetBasicAuth("alice", "secret1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("missing header gets a challenge", func(t *testing.T) {
		handler := BasicAuth(&stubVerifier{user: alice}, discardLogger())(echoUser)

		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	})

	t.Run("bad credentials", func(t *testing.T) {
		handler := BasicAuth(&stubVerifier{err: types.ErrUnauthenticated}, discardLogger())(echoUser)

		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		req.SetBasicAuth("alice", "wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid username or password")
	})
}
