package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/go-task-tracker/internal/events"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

var _ TaskService = (*TaskServiceImpl)(nil)

// TaskService enforces the read-open, write-owner access model: anyone may
// read any task, only the owner may change or delete one.
type TaskService interface {
	CreateTask(ctx context.Context, userID int64, params types.CreateTaskParams) (*types.Task, error)
	GetTask(ctx context.Context, taskID int64) (*types.Task, error)
	ListTasks(ctx context.Context, search string) ([]*types.Task, error)

	// UpdateTask returns types.ErrNotFound for a missing task and
	// types.ErrForbidden when requesterID does not own it. Existence is
	// checked first, so a non-owner probing a missing ID learns nothing.
	UpdateTask(ctx context.Context, requesterID, taskID int64, params types.UpdateTaskParams) (*types.Task, error)

	// DeleteTask follows the same not-found-before-forbidden ordering.
	DeleteTask(ctx context.Context, requesterID, taskID int64) error
}

type TaskServiceImpl struct {
	logger    *slog.Logger
	repo      TaskRepo
	publisher events.Publisher
}

func NewTaskService(repo TaskRepo, publisher events.Publisher, logger *slog.Logger) *TaskServiceImpl {
	return &TaskServiceImpl{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
	}
}

// CanModify reports whether the requester owns the task.
func CanModify(requesterID int64, task *types.Task) bool {
	return task.UserID == requesterID
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, userID int64, params types.CreateTaskParams) (*types.Task, error) {
	if params.Title == "" || params.Description == "" {
		return nil, fmt.Errorf("title and description are required: %w", types.ErrValidation)
	}

	task, err := s.repo.CreateTask(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Task created",
		slog.Int64("taskID", task.ID), slog.Int64("userID", userID))

	s.publish(ctx, events.TypeTaskCreated, map[string]interface{}{
		"task_id": task.ID,
		"user_id": userID,
		"title":   task.Title,
	})
	return task, nil
}

func (s *TaskServiceImpl) GetTask(ctx context.Context, taskID int64) (*types.Task, error) {
	return s.repo.GetTaskByID(ctx, taskID)
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, search string) ([]*types.Task, error) {
	return s.repo.ListTasks(ctx, search)
}

func (s *TaskServiceImpl) UpdateTask(ctx context.Context, requesterID, taskID int64, params types.UpdateTaskParams) (*types.Task, error) {
	existing, err := s.repo.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !CanModify(requesterID, existing) {
		return nil, types.ErrForbidden
	}
	return s.repo.UpdateTask(ctx, taskID, params)
}

func (s *TaskServiceImpl) DeleteTask(ctx context.Context, requesterID, taskID int64) error {
	existing, err := s.repo.GetTaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	if !CanModify(requesterID, existing) {
		return types.ErrForbidden
	}

	if err = s.repo.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Task deleted",
		slog.Int64("taskID", taskID), slog.Int64("userID", requesterID))

	s.publish(ctx, events.TypeTaskDeleted, map[string]interface{}{
		"task_id": taskID,
		"user_id": requesterID,
	})
	return nil
}

func (s *TaskServiceImpl) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			slog.String("type", eventType), slog.Any("error", err))
	}
}
