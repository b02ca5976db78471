package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docsift/internal/api/middlewares"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(a *App, logger *zap.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           NewRouter(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, logger: logger}
}

// NewRouter mounts the API on a chi router.
func NewRouter(a *App, logger *zap.Logger) http.Handler {
	docHandler := handlers.NewDocumentHandler(a.Documents, a.Ingest, a.Config.MaxUploadBytes)
	chatHandler := handlers.NewChatHandler(a.Builder, a.Deps.LLM)
	healthHandler := handlers.NewHealthHandler(a.Deps.DB, Name, Version)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	r.Get("/version", healthHandler.Version)

	// API routes
	r.Route("/api", func(api chi.Router) {
		api.Route("/documents", func(d chi.Router) {
			d.Get("/supported-types", docHandler.SupportedTypes)
			d.Post("/upload", docHandler.Upload)
			d.Get("/search", docHandler.Search)
			d.Get("/search/hybrid", docHandler.SearchHybrid)
			d.Post("/ask", chatHandler.Ask)
			d.Get("/", docHandler.List)

			d.Route("/{id}", func(doc chi.Router) {
				doc.Get("/", docHandler.Get)
				doc.Delete("/", docHandler.Delete)
				doc.Get("/chunks", docHandler.Chunks)
				doc.Get("/tables", docHandler.Tables)
				doc.Get("/context", docHandler.Context)
				doc.Get("/download", docHandler.Download)
				doc.Post("/reindex", docHandler.Reindex)
			})
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
