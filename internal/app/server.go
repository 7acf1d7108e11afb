package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Kaleem/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Kaleem/internal/api/middlewares"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/logger"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewRouter wires every route. "{id}" is a company uid on the list, upload
// and search routes and a source uid everywhere else.
func NewRouter(cfg *config.Config, data *handlers.DataHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/ping", handlers.Ping)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		api.Post("/data/upload/{id}", data.Upload)
		api.Get("/data/search/{id}", data.Search)

		api.Route("/data/files/{id}", func(files chi.Router) {
			files.Get("/", data.ListFiles)
			files.Patch("/", data.PatchFile)
			files.Delete("/", data.DeleteFile)
			files.Get("/info", data.GetFile)
			files.Get("/url", data.SignedURL)
			files.Get("/chunks", data.Chunks)
			files.Post("/reindex", data.Reindex)
		})
	})

	return r
}

func NewServer(cfg *config.Config, handler http.Handler, log *logger.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
