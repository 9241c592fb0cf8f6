package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-task-tracker/app/observability/metrics"
	"github.com/FACorreiaa/go-task-tracker/internal/api/auth"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

var _ TaskRepo = (*PostgresTaskRepo)(nil)

// TaskRepo is the persistence contract for tasks. Reads always come back
// with the author joined in so the public representation never needs a
// second query.
type TaskRepo interface {
	CreateTask(ctx context.Context, userID int64, params types.CreateTaskParams) (*types.Task, error)

	// GetTaskByID returns types.ErrNotFound when no such task exists.
	GetTaskByID(ctx context.Context, taskID int64) (*types.Task, error)

	// ListTasks returns all tasks, newest first. A non-empty search narrows
	// the result to titles containing it, case-insensitively.
	ListTasks(ctx context.Context, search string) ([]*types.Task, error)

	// UpdateTask applies the whitelisted patch fields.
	UpdateTask(ctx context.Context, taskID int64, params types.UpdateTaskParams) (*types.Task, error)

	DeleteTask(ctx context.Context, taskID int64) error
}

// taskSelect joins tasks to their owner so one scan yields the full
// public record.
const taskSelect = `
    SELECT t.id, t.title, t.description, t.completed, t.created_at, t.due_date, t.user_id,
           u.id, u.first_name, u.last_name, u.username, u.email, u.date_created
    FROM tasks t
    JOIN users u ON u.id = t.user_id`

type PostgresTaskRepo struct {
	logger *slog.Logger
	pgpool auth.PGXPool
}

func NewPostgresTaskRepo(pgpool auth.PGXPool, logger *slog.Logger) *PostgresTaskRepo {
	return &PostgresTaskRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func scanTask(row pgx.Row) (*types.Task, error) {
	var task types.Task
	var author types.User
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Completed, &task.CreatedAt, &task.DueDate, &task.UserID,
		&author.ID, &author.FirstName, &author.LastName, &author.Username, &author.Email, &author.DateCreated,
	)
	if err != nil {
		return nil, err
	}
	task.Author = &author
	return &task, nil
}

func (r *PostgresTaskRepo) CreateTask(ctx context.Context, userID int64, params types.CreateTaskParams) (*types.Task, error) {
	ctx, span := otel.Tracer("TaskRepo").Start(ctx, "CreateTask", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "tasks"),
	))
	defer span.End()

	var taskID int64
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO tasks (title, description, due_date, user_id)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		params.Title, params.Description, params.DueDate, userID).Scan(&taskID)
	if err != nil {
		span.RecordError(err)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresTaskRepo.CreateTask: %w", err)
	}

	return r.GetTaskByID(ctx, taskID)
}

func (r *PostgresTaskRepo) GetTaskByID(ctx context.Context, taskID int64) (*types.Task, error) {
	task, err := scanTask(r.pgpool.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresTaskRepo.GetTaskByID: %w", err)
	}
	return task, nil
}

func (r *PostgresTaskRepo) ListTasks(ctx context.Context, search string) ([]*types.Task, error) {
	ctx, span := otel.Tracer("TaskRepo").Start(ctx, "ListTasks", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "tasks"),
	))
	defer span.End()

	query := taskSelect
	var args []interface{}
	if search != "" {
		query += ` WHERE t.title ILIKE '%' || $1 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresTaskRepo.ListTasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*types.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("PostgresTaskRepo.ListTasks: scan: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err = rows.Err(); err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresTaskRepo.ListTasks: rows: %w", err)
	}
	return tasks, nil
}

func (r *PostgresTaskRepo) UpdateTask(ctx context.Context, taskID int64, params types.UpdateTaskParams) (*types.Task, error) {
	var setClauses []string
	var args []interface{}
	argID := 1

	if params.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argID))
		args = append(args, *params.Title)
		argID++
	}
	if params.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argID))
		args = append(args, *params.Description)
		argID++
	}
	if params.Completed != nil {
		setClauses = append(setClauses, fmt.Sprintf("completed = $%d", argID))
		args = append(args, *params.Completed)
		argID++
	}

	if len(setClauses) == 0 {
		return r.GetTaskByID(ctx, taskID)
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argID)
	args = append(args, taskID)

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("PostgresTaskRepo.UpdateTask: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.ErrNotFound
	}

	return r.GetTaskByID(ctx, taskID)
}

func (r *PostgresTaskRepo) DeleteTask(ctx context.Context, taskID int64) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("PostgresTaskRepo.DeleteTask: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}
