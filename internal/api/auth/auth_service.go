package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-task-tracker/app/observability/metrics"
	"github.com/FACorreiaa/go-task-tracker/internal/events"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService owns identities, credentials and bearer tokens.
type AuthService interface {
	// Register creates a new user from plaintext credentials.
	Register(ctx context.Context, params types.RegisterUserParams) (*types.User, error)

	// VerifyCredentials checks a username-or-email + password pair and
	// returns the matching user. Wrong identifier and wrong password both
	// come back as types.ErrUnauthenticated.
	VerifyCredentials(ctx context.Context, identifier, password string) (*types.User, error)

	// IssueToken returns the user's bearer token, reusing the current one
	// while it has comfortably more than the reuse margin left to live and
	// minting a replacement otherwise.
	IssueToken(ctx context.Context, userID int64) (*types.TokenResponse, error)

	// AuthenticateToken resolves a bearer token to its user, rejecting
	// unknown tokens with types.ErrUnauthenticated and expired ones with
	// types.ErrTokenExpired.
	AuthenticateToken(ctx context.Context, token string) (*types.User, error)

	// UpdateProfile applies the whitelisted patch fields to the user.
	UpdateProfile(ctx context.Context, userID int64, params types.UpdateProfileParams) (*types.User, error)

	// DeleteUser removes the account and all of its tasks.
	DeleteUser(ctx context.Context, userID int64) error
}

type AuthServiceImpl struct {
	logger      *slog.Logger
	repo        AuthRepo
	hasher      Hasher
	tokens      TokenSource
	tokenCache  *cache.Cache
	publisher   events.Publisher
	tokenTTL    time.Duration
	reuseMargin time.Duration

	// now is swapped out in tests.
	now func() time.Time
}

func NewAuthService(repo AuthRepo, hasher Hasher, tokens TokenSource, tokenCache *cache.Cache,
	publisher events.Publisher, tokenTTL, reuseMargin time.Duration, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:      logger,
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		tokenCache:  tokenCache,
		publisher:   publisher,
		tokenTTL:    tokenTTL,
		reuseMargin: reuseMargin,
		now:         time.Now,
	}
}

func tokenCacheKey(token string) string { return "token:" + token }
func userTokenKey(userID int64) string  { return fmt.Sprintf("usertok:%d", userID) }

func (s *AuthServiceImpl) Register(ctx context.Context, params types.RegisterUserParams) (*types.User, error) {
	l := s.logger.With(slog.String("method", "Register"), slog.String("username", params.Username))

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, params, hash)
	if err != nil {
		return nil, err
	}
	metrics.Get().RegisterRequestsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "User registered", slog.Int64("userID", user.ID))

	s.publish(ctx, events.TypeUserRegistered, map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return user, nil
}

func (s *AuthServiceImpl) VerifyCredentials(ctx context.Context, identifier, password string) (*types.User, error) {
	user, err := s.repo.GetUserByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Get().AuthFailuresTotal.Add(ctx, 1)
			return nil, types.ErrUnauthenticated
		}
		return nil, err
	}

	if err = s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			metrics.Get().AuthFailuresTotal.Add(ctx, 1)
			return nil, types.ErrUnauthenticated
		}
		return nil, fmt.Errorf("comparing password: %w", err)
	}
	return user, nil
}

func (s *AuthServiceImpl) IssueToken(ctx context.Context, userID int64) (*types.TokenResponse, error) {
	l := s.logger.With(slog.String("method", "IssueToken"), slog.Int64("userID", userID))

	candidate, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	now := s.now()
	token, expiration, rotated, prevToken, err := s.repo.IssueToken(
		ctx, userID, candidate, now.Add(s.tokenTTL), now.Add(s.reuseMargin))
	if err != nil {
		return nil, err
	}

	if rotated {
		metrics.Get().TokensIssuedTotal.Add(ctx, 1)
		l.DebugContext(ctx, "Issued fresh token")
		if prevToken != nil {
			s.tokenCache.Delete(tokenCacheKey(*prevToken))
		}
		s.tokenCache.Delete(userTokenKey(userID))
	} else {
		metrics.Get().TokensReusedTotal.Add(ctx, 1)
		l.DebugContext(ctx, "Reused existing token")
	}

	return &types.TokenResponse{Token: token, TokenExpiration: expiration}, nil
}

func (s *AuthServiceImpl) AuthenticateToken(ctx context.Context, token string) (*types.User, error) {
	now := s.now()

	if cached, found := s.tokenCache.Get(tokenCacheKey(token)); found {
		user := cached.(*types.User)
		// The cache TTL tracks the token expiry, but re-check anyway so a
		// clock override in tests behaves like the database path.
		if user.TokenExpiration != nil && user.TokenExpiration.After(now) {
			return user, nil
		}
		s.evictUser(user.ID, token)
	}

	user, err := s.repo.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Get().AuthFailuresTotal.Add(ctx, 1)
			return nil, types.ErrUnauthenticated
		}
		return nil, err
	}

	if user.TokenExpiration == nil || !user.TokenExpiration.After(now) {
		metrics.Get().AuthFailuresTotal.Add(ctx, 1)
		return nil, types.ErrTokenExpired
	}

	s.tokenCache.Set(tokenCacheKey(token), user, user.TokenExpiration.Sub(now))
	s.tokenCache.Set(userTokenKey(user.ID), token, user.TokenExpiration.Sub(now))
	return user, nil
}

func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, userID int64, params types.UpdateProfileParams) (*types.User, error) {
	var passwordHash *string
	if params.Password != nil {
		hash, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		passwordHash = &hash
	}

	user, err := s.repo.UpdateProfile(ctx, userID, params, passwordHash)
	if err != nil {
		return nil, err
	}

	// Cached snapshots carry the old field values; drop them.
	s.evictUserByID(userID)
	return user, nil
}

func (s *AuthServiceImpl) DeleteUser(ctx context.Context, userID int64) error {
	l := s.logger.With(slog.String("method", "DeleteUser"), slog.Int64("userID", userID))

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.evictUserByID(userID)
	l.InfoContext(ctx, "User deleted")

	s.publish(ctx, events.TypeUserDeleted, map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

func (s *AuthServiceImpl) evictUser(userID int64, token string) {
	s.tokenCache.Delete(tokenCacheKey(token))
	s.tokenCache.Delete(userTokenKey(userID))
}

func (s *AuthServiceImpl) evictUserByID(userID int64) {
	if tok, found := s.tokenCache.Get(userTokenKey(userID)); found {
		s.tokenCache.Delete(tokenCacheKey(tok.(string)))
	}
	s.tokenCache.Delete(userTokenKey(userID))
}

func (s *AuthServiceImpl) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			slog.String("type", eventType), slog.Any("error", err))
	}
}
