package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-task-tracker/app/observability/metrics"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

// PGXPool is the subset of pgxpool.Pool the repositories need. Declared as
// an interface so the SQL paths can be exercised with pgxmock.
type PGXPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the persistence contract for identities and their bearer
// tokens.
type AuthRepo interface {
	// CreateUser inserts a new identity with an already-hashed password.
	// Returns types.ErrConflict when username or email is taken.
	CreateUser(ctx context.Context, params types.RegisterUserParams, passwordHash string) (*types.User, error)

	// GetUserByUsernameOrEmail resolves a login identifier.
	GetUserByUsernameOrEmail(ctx context.Context, identifier string) (*types.User, error)

	GetUserByID(ctx context.Context, userID int64) (*types.User, error)

	// GetUserByToken looks a user up by exact bearer token match.
	GetUserByToken(ctx context.Context, token string) (*types.User, error)

	// UpdateProfile applies the whitelisted patch fields. passwordHash, when
	// non-nil, replaces the stored hash (the service hashes before calling).
	UpdateProfile(ctx context.Context, userID int64, params types.UpdateProfileParams, passwordHash *string) (*types.User, error)

	// DeleteUser removes the user and every owned task in one transaction.
	DeleteUser(ctx context.Context, userID int64) error

	// IssueToken decides, under a row lock, whether the user's current token
	// is still reusable (expiry beyond cutoff) or must be replaced by
	// candidate/expiresAt. It returns the winning token and expiry, whether a
	// rotation happened, and the replaced token if one was overwritten.
	IssueToken(ctx context.Context, userID int64, candidate string, expiresAt, cutoff time.Time) (string, time.Time, bool, *string, error)
}

const userColumns = "id, first_name, last_name, username, email, password_hash, date_created, token, token_expiration"

type PostgresAuthRepo struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewPostgresAuthRepo(pgpool PGXPool, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func scanUser(row pgx.Row) (*types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Username, &user.Email,
		&user.PasswordHash, &user.DateCreated, &user.Token, &user.TokenExpiration,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, params types.RegisterUserParams, passwordHash string) (*types.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	row := r.pgpool.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, username, email, password_hash)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING `+userColumns,
		params.FirstName, params.LastName, params.Username, params.Email, passwordHash)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "duplicate identity")
			return nil, fmt.Errorf("user with that username or email already exists: %w", types.ErrConflict)
		}
		span.RecordError(err)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresAuthRepo.CreateUser: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByUsernameOrEmail(ctx context.Context, identifier string) (*types.User, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, identifier)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresAuthRepo.GetUserByUsernameOrEmail: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID int64) (*types.User, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresAuthRepo.GetUserByID: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByToken(ctx context.Context, token string) (*types.User, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE token = $1`, token)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresAuthRepo.GetUserByToken: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) UpdateProfile(ctx context.Context, userID int64, params types.UpdateProfileParams, passwordHash *string) (*types.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "UpdateProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateProfile"), slog.Int64("userID", userID))

	// Build the SET clause from the non-nil patch fields only.
	var setClauses []string
	var args []interface{}
	argID := 1

	if params.FirstName != nil {
		setClauses = append(setClauses, fmt.Sprintf("first_name = $%d", argID))
		args = append(args, *params.FirstName)
		argID++
	}
	if params.LastName != nil {
		setClauses = append(setClauses, fmt.Sprintf("last_name = $%d", argID))
		args = append(args, *params.LastName)
		argID++
	}
	if params.Username != nil {
		setClauses = append(setClauses, fmt.Sprintf("username = $%d", argID))
		args = append(args, *params.Username)
		argID++
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argID))
		args = append(args, *params.Email)
		argID++
	}
	if passwordHash != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argID))
		args = append(args, *passwordHash)
		argID++
	}

	if len(setClauses) == 0 {
		l.DebugContext(ctx, "No fields to update, returning current profile")
		return r.GetUserByID(ctx, userID)
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)
	args = append(args, userID)

	user, err := scanUser(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "duplicate identity")
			return nil, fmt.Errorf("username or email already taken: %w", types.ErrConflict)
		}
		span.RecordError(err)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresAuthRepo.UpdateProfile: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) DeleteUser(ctx context.Context, userID int64) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "DeleteUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	// The user row and every owned task go in one transaction: either both
	// disappear or neither does.
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("PostgresAuthRepo.DeleteUser: begin: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1`, userID); err != nil {
		_ = tx.Rollback(ctx)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("PostgresAuthRepo.DeleteUser: delete tasks: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		_ = tx.Rollback(ctx)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("PostgresAuthRepo.DeleteUser: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return types.ErrNotFound
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("PostgresAuthRepo.DeleteUser: commit: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) IssueToken(ctx context.Context, userID int64, candidate string, expiresAt, cutoff time.Time) (string, time.Time, bool, *string, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "IssueToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	// FOR UPDATE serializes issuance per user: two concurrent calls cannot
	// both rotate, so the single-slot token invariant holds.
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return "", time.Time{}, false, nil, fmt.Errorf("PostgresAuthRepo.IssueToken: begin: %w", err)
	}

	var currentToken *string
	var currentExpiration *time.Time
	err = tx.QueryRow(ctx,
		`SELECT token, token_expiration FROM users WHERE id = $1 FOR UPDATE`,
		userID).Scan(&currentToken, &currentExpiration)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, false, nil, types.ErrNotFound
		}
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return "", time.Time{}, false, nil, fmt.Errorf("PostgresAuthRepo.IssueToken: select: %w", err)
	}

	// Reuse while the remaining validity clears the safety margin; rotating
	// here would only churn tokens out from under concurrent requests.
	if currentToken != nil && currentExpiration != nil && currentExpiration.After(cutoff) {
		if err = tx.Commit(ctx); err != nil {
			return "", time.Time{}, false, nil, fmt.Errorf("PostgresAuthRepo.IssueToken: commit: %w", err)
		}
		span.SetAttributes(attribute.Bool("token.reused", true))
		return *currentToken, *currentExpiration, false, nil, nil
	}

	if _, err = tx.Exec(ctx,
		`UPDATE users SET token = $1, token_expiration = $2 WHERE id = $3`,
		candidate, expiresAt, userID); err != nil {
		_ = tx.Rollback(ctx)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return "", time.Time{}, false, nil, fmt.Errorf("PostgresAuthRepo.IssueToken: update: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return "", time.Time{}, false, nil, fmt.Errorf("PostgresAuthRepo.IssueToken: commit: %w", err)
	}
	return candidate, expiresAt, true, currentToken, nil
}
