package task

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/go-task-tracker/app/middleware"
	"github.com/FACorreiaa/go-task-tracker/internal/api"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

type HandlerImpl struct {
	taskService TaskService
	logger      *slog.Logger
}

func NewHandlerImpl(taskService TaskService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		taskService: taskService,
		logger:      logger,
	}
}

// taskIDParam parses the {taskID} URL parameter. A non-numeric ID behaves
// like a missing task.
func taskIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
}

// ListTasks godoc
// @Summary      List tasks
// @Description  Returns all tasks, optionally filtered by a case-insensitive
// @Description  title substring. No authentication required.
// @Tags         tasks
// @Produce      json
// @Param        search query string false "Title substring filter"
// @Success      200 {array} types.Task
// @Router       /tasks [get]
func (h *HandlerImpl) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ListTasks"))

	search := r.URL.Query().Get("search")
	tasks, err := h.taskService.ListTasks(ctx, search)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list tasks", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, tasks)
}

// GetTask godoc
// @Summary      Get a task
// @Tags         tasks
// @Produce      json
// @Param        taskID path int true "Task ID"
// @Success      200 {object} types.Task
// @Failure      404 {object} map[string]interface{}
// @Router       /tasks/{taskID} [get]
func (h *HandlerImpl) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "GetTask"))

	taskID, err := taskIDParam(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusNotFound, "Task does not exist")
		return
	}

	task, err := h.taskService.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("Task with ID %d does not exist", taskID))
			return
		}
		l.ErrorContext(ctx, "Failed to get task", slog.Any("error", err), slog.Int64("taskID", taskID))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to get task")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, task)
}

// CreateTask godoc
// @Summary      Create a task
// @Description  Creates a task owned by the authenticated user. Title and
// @Description  description are required; due_date is optional and fixed at
// @Description  creation.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        task body types.CreateTaskParams true "Task to create"
// @Success      201 {object} types.Task
// @Failure      400 {object} map[string]interface{}
// @Router       /tasks [post]
func (h *HandlerImpl) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "CreateTask"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	if !api.IsJSONRequest(r) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Your content-type must be application/json")
		return
	}

	var params types.CreateTaskParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var missing []string
	if params.Title == "" {
		missing = append(missing, "title")
	}
	if params.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest,
			fmt.Sprintf("%s must be in the request body", strings.Join(missing, ", ")))
		return
	}

	task, err := h.taskService.CreateTask(ctx, user.ID, params)
	if err != nil {
		if errors.Is(err, types.ErrValidation) {
			api.ErrorResponse(w, r, http.StatusBadRequest, "title and description must be in the request body")
			return
		}
		l.ErrorContext(ctx, "Failed to create task", slog.Any("error", err), slog.Int64("userID", user.ID))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to create task")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, task)
}

// UpdateTask godoc
// @Summary      Edit a task
// @Description  Applies title, description and completed changes to an owned
// @Description  task. Other fields in the body are ignored.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        taskID path int true "Task ID"
// @Success      200 {object} types.Task
// @Failure      403 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Router       /tasks/{taskID} [put]
func (h *HandlerImpl) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "UpdateTask"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	if !api.IsJSONRequest(r) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Your content-type must be application/json")
		return
	}

	taskID, err := taskIDParam(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusNotFound, "Task does not exist")
		return
	}

	var params types.UpdateTaskParams
	if err = api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.UpdateTask(ctx, user.ID, taskID, params)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("Task with ID %d does not exist", taskID))
		case errors.Is(err, types.ErrForbidden):
			api.ErrorResponse(w, r, http.StatusForbidden, "This is not your task to edit")
		default:
			l.ErrorContext(ctx, "Failed to update task", slog.Any("error", err), slog.Int64("taskID", taskID))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update task")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, task)
}

// DeleteTask godoc
// @Summary      Delete a task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        taskID path int true "Task ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Router       /tasks/{taskID} [delete]
func (h *HandlerImpl) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "DeleteTask"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	taskID, err := taskIDParam(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusNotFound, "Task does not exist")
		return
	}

	if err = h.taskService.DeleteTask(ctx, user.ID, taskID); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("Task with ID %d does not exist", taskID))
		case errors.Is(err, types.ErrForbidden):
			api.ErrorResponse(w, r, http.StatusForbidden, "You do not have permission to delete this task")
		default:
			l.ErrorContext(ctx, "Failed to delete task", slog.Any("error", err), slog.Int64("taskID", taskID))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete task")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"success": "task deleted"})
}
