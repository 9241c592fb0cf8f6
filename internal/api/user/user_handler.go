package user

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-task-tracker/app/middleware"
	"github.com/FACorreiaa/go-task-tracker/internal/api"
	"github.com/FACorreiaa/go-task-tracker/internal/api/auth"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Register(w http.ResponseWriter, r *http.Request)
	GetMe(w http.ResponseWriter, r *http.Request)
	UpdateProfile(w http.ResponseWriter, r *http.Request)
	DeleteMe(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	authService auth.AuthService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(authService auth.AuthService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		logger:      logger,
	}
}

// Register godoc
// @Summary      Register a user
// @Description  Creates a new account. All five fields are required; username
// @Description  and email must be unique.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user body types.RegisterUserParams true "New user"
// @Success      201 {object} types.User
// @Failure      400 {object} map[string]interface{}
// @Router       /users [post]
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Register"))

	if !api.IsJSONRequest(r) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Your content-type must be application/json")
		return
	}

	var params types.RegisterUserParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"firstName", params.FirstName},
		{"lastName", params.LastName},
		{"username", params.Username},
		{"email", params.Email},
		{"password", params.Password},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest,
			fmt.Sprintf("%s must be in the request body", strings.Join(missing, ", ")))
		return
	}

	user, err := h.authService.Register(ctx, params)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			api.ErrorResponse(w, r, http.StatusBadRequest, "A user with that username and/or email already exists")
			return
		}
		l.ErrorContext(ctx, "Failed to register user", slog.Any("error", err), slog.String("username", params.Username))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to register user")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, user)
}

// GetMe godoc
// @Summary      Get own profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} types.User
// @Failure      401 {object} map[string]interface{}
// @Router       /users/me [get]
func (h *HandlerImpl) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "GetMe"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// UpdateProfile godoc
// @Summary      Update own profile
// @Description  Applies any subset of firstName, lastName, username, email and
// @Description  password to the authenticated account. Other fields are
// @Description  ignored.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} types.User
// @Failure      400 {object} map[string]interface{}
// @Router       /users [put]
func (h *HandlerImpl) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "UpdateProfile"))

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

	var params types.UpdateProfileParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.authService.UpdateProfile(ctx, user.ID, params)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrConflict):
			api.ErrorResponse(w, r, http.StatusBadRequest, "A user with that username and/or email already exists")
		case errors.Is(err, types.ErrNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, "User not found")
		default:
			l.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err), slog.Int64("userID", user.ID))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update profile")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, updated)
}

// DeleteMe godoc
// @Summary      Delete own account
// @Description  Removes the account and every task it owns.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]string
// @Failure      401 {object} map[string]interface{}
// @Router       /users [delete]
func (h *HandlerImpl) DeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "DeleteMe"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	if err := h.authService.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "User not found")
			return
		}
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err), slog.Int64("userID", user.ID))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"success": "user deleted"})
}
