package auth

import (
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-task-tracker/app/middleware"
	"github.com/FACorreiaa/go-task-tracker/internal/api"
)

type HandlerImpl struct {
	authService AuthService
	logger      *slog.Logger
}

func NewHandlerImpl(authService AuthService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		logger:      logger,
	}
}

// GetToken godoc
// @Summary      Issue a bearer token
// @Description  Exchanges HTTP Basic credentials for a bearer token. A token
// @Description  with enough lifetime left is returned as-is instead of minting
// @Description  a new one.
// @Tags         auth
// @Produce      json
// @Security     BasicAuth
// @Success      200 {object} types.TokenResponse
// @Failure      401 {object} map[string]interface{}
// @Router       /token [get]
func (h *HandlerImpl) GetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "GetToken"))

	user, ok := appMiddleware.GetUserFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "No authenticated user on context")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Authentication context missing")
		return
	}

	resp, err := h.authService.IssueToken(ctx, user.ID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to issue token", slog.Any("error", err), slog.Int64("userID", user.ID))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}
