// Package server wires the S3-compatible routes, the cross-cutting
// middleware, and the HTTP listener lifecycle.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipfsgate/ipfsgate/internal/auth"
	"github.com/ipfsgate/ipfsgate/internal/clientip"
	"github.com/ipfsgate/ipfsgate/internal/config"
	"github.com/ipfsgate/ipfsgate/internal/handlers"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New builds the router around the given handler set. The SigV4 layer is
// installed only when credentials are configured.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handler) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(metricsMiddleware)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Range", "User-Agent", "X-Requested-With"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "x-ipfs-path", "x-ipfs-roots"},
	}))
	router.Use(clientip.Middleware(clientip.Source(cfg.IPExtraction)))

	router.Get("/healthz", h.Healthz)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			verifier := auth.NewVerifier(cfg.Auth.AccessKey, cfg.Auth.SecretKey)
			r.Use(auth.Middleware(verifier, logger))
		}

		r.Get("/{bucket}", h.GetBucket)
		r.Post("/{bucket}", h.PostBucket)
		r.Get("/{bucket}/", h.GetBucket)
		r.Post("/{bucket}/", h.PostBucket)

		r.Put("/{bucket}/*", h.PutObject)
		r.Get("/{bucket}/*", h.GetObject)
		r.Head("/{bucket}/*", h.HeadObject)
		r.Delete("/{bucket}/*", h.DeleteObject)
		r.Post("/{bucket}/*", h.PostObject)
	})

	return &Server{cfg: cfg, logger: logger, router: router}
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the HTTP server on the given listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	s.logger.Info("listening", "addr", ln.Addr().String(), "mode", string(s.cfg.Mode))
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
