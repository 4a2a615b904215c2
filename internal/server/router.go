package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/api/handlers"
	"github.com/parleyhq/parley/internal/api/middleware"
)

type RouterConfig struct {
	APIToken            string
	ProjectHandler      *handlers.ProjectHandler
	DocumentHandler     *handlers.DocumentHandler
	ConversationHandler *handlers.ConversationHandler
	SynthesisHandler    *handlers.SynthesisHandler
	SearchHandler       *handlers.SearchHandler
	AdminHandler        *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 25 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.APIToken))

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", cfg.ProjectHandler.Create)
			r.Get("/", cfg.ProjectHandler.List)
			r.Get("/{id}", cfg.ProjectHandler.Get)

			r.Post("/{id}/documents", cfg.DocumentHandler.Upload)
			r.Get("/{id}/documents", cfg.DocumentHandler.ListByProject)

			r.Post("/{id}/conversations", cfg.ConversationHandler.Start)
			r.Get("/{id}/conversations", cfg.ConversationHandler.ListByProject)

			r.Post("/{id}/synthesis/generate", cfg.SynthesisHandler.Generate)
			r.Get("/{id}/synthesis/current", cfg.SynthesisHandler.GetCurrent)
			r.Get("/{id}/synthesis/versions", cfg.SynthesisHandler.ListVersions)
			r.Get("/{id}/synthesis/versions/{version}", cfg.SynthesisHandler.GetVersion)

			r.Post("/{id}/search", cfg.SearchHandler.Search)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/chunks", cfg.DocumentHandler.ListChunks)
			r.Get("/{id}/download", cfg.DocumentHandler.GetDownloadURL)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/{id}/messages", cfg.ConversationHandler.AppendMessage)
			r.Get("/{id}/messages", cfg.ConversationHandler.ListMessages)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reprocess", cfg.AdminHandler.Reprocess)
			r.Get("/pipeline", cfg.AdminHandler.PipelineStatus)
		})
	})

	return r
}
