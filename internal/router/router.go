package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/taskpilot/api/handler"
)

type Handlers struct {
	Profile    *apiHandler.ProfileHandler
	Task       *apiHandler.TaskHandler
	Suggestion *apiHandler.SuggestionHandler
	Agent      *apiHandler.AgentHandler
	Health     *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Protected routes
	r.GET("/api/v1/profile", authMiddleware(handlers.Profile.GetProfile))
	r.PUT("/api/v1/profile", authMiddleware(handlers.Profile.UpdateProfile))

	r.GET("/api/v1/tasks", authMiddleware(handlers.Task.GetTasks))
	r.POST("/api/v1/tasks", authMiddleware(handlers.Task.CreateTask))
	r.GET("/api/v1/tasks/{id}", authMiddleware(handlers.Task.GetTask))
	r.PUT("/api/v1/tasks/{id}", authMiddleware(handlers.Task.UpdateTask))
	r.DELETE("/api/v1/tasks/{id}", authMiddleware(handlers.Task.DeleteTask))
	r.POST("/api/v1/tasks/{id}/complete", authMiddleware(handlers.Task.CompleteTask))
	r.POST("/api/v1/tasks/{id}/uncomplete", authMiddleware(handlers.Task.UncompleteTask))

	r.GET("/api/v1/suggestions", authMiddleware(handlers.Suggestion.List))
	r.GET("/api/v1/suggestions/counts", authMiddleware(handlers.Suggestion.Counts))
	r.POST("/api/v1/suggestions/{id}/dismiss", authMiddleware(handlers.Suggestion.Dismiss))
	r.DELETE("/api/v1/suggestions/{id}", authMiddleware(handlers.Suggestion.Delete))

	if handlers.Agent != nil {
		r.POST("/api/v1/agent/runs", authMiddleware(handlers.Agent.Run))
		r.GET("/api/v1/agent/runs/last", authMiddleware(handlers.Agent.Last))
	}

	return r
}
