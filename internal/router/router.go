package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/FACorreiaa/go-task-tracker/internal/api/auth"
	"github.com/FACorreiaa/go-task-tracker/internal/api/task"
	"github.com/FACorreiaa/go-task-tracker/internal/api/user"
)

// Config contains the dependencies needed for the router setup.
type Config struct {
	AuthHandler *auth.HandlerImpl
	UserHandler *user.HandlerImpl
	TaskHandler *task.HandlerImpl

	// BasicAuthMiddleware guards the token endpoint; AuthenticateMiddleware
	// guards everything that needs a bearer token.
	BasicAuthMiddleware    func(http.Handler) http.Handler
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are applied before
// mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Task Tracker API"))
	})
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	// Registration and all task reads are open.
	r.Post("/users", cfg.UserHandler.Register)
	r.Get("/tasks", cfg.TaskHandler.ListTasks)
	r.Get("/tasks/{taskID}", cfg.TaskHandler.GetTask)

	// Token issuance trades Basic credentials for a bearer token.
	r.Group(func(r chi.Router) {
		r.Use(cfg.BasicAuthMiddleware)
		r.Get("/token", cfg.AuthHandler.GetToken)
	})

	// Everything else requires a bearer token.
	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthenticateMiddleware)

		r.Get("/users/me", cfg.UserHandler.GetMe)
		r.Put("/users", cfg.UserHandler.UpdateProfile)
		r.Delete("/users", cfg.UserHandler.DeleteMe)

		r.Post("/tasks", cfg.TaskHandler.CreateTask)
		r.Put("/tasks/{taskID}", cfg.TaskHandler.UpdateTask)
		r.Delete("/tasks/{taskID}", cfg.TaskHandler.DeleteTask)
	})

	return r
}
