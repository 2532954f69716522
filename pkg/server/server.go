// Package server bridges the installer to HTTP clients: a REST API and a
// websocket stream of change events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/tierone/installd/pkg/installer"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server serves the API of one installer.
type Server struct {
	inst     *installer.Installer
	log      logr.Logger
	origins  []string
	hub      *hub
	upgrader websocket.Upgrader
	router   chi.Router
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAllowedOrigins restricts cross-origin requests and websocket
// upgrades. An empty list allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates the server and subscribes it to every observable entity of
// inst.
func New(inst *installer.Installer, opts ...Option) *Server {
	s := &Server{
		inst: inst,
		log:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.WithName("server")
	s.hub = newHub(s.log)
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.routes()
	s.subscribe()

	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "ok")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", s.handleWS)

		r.Route("/manager", func(r chi.Router) {
			r.Get("/", s.getManager)
			r.Post("/probe", s.probe)
			r.Post("/install", s.install)
			r.Get("/progress", s.getManagerProgress)
		})

		r.Route("/software", func(r chi.Router) {
			r.Get("/products", s.getProducts)
			r.Get("/product", s.getProduct)
			r.Put("/product", s.selectProduct)
			r.Get("/repositories", s.getRepositories)
			r.Get("/proposal", s.getProposal)
			r.Get("/progress", s.getSoftwareProgress)
		})

		r.Route("/network", func(r chi.Router) {
			r.Get("/connections", s.getConnections)
			r.Post("/connections", s.addConnection)
			r.Get("/connections/{id}", s.getConnection)
			r.Put("/connections/{id}", s.updateConnection)
			r.Delete("/connections/{id}", s.deleteConnection)
			r.Get("/active", s.getActiveConnections)
			r.Get("/access-points", s.getAccessPoints)
			r.Get("/hostname", s.getHostname)
			r.Get("/progress", s.getNetworkProgress)
		})

		r.Route("/registration", func(r chi.Router) {
			r.Get("/", s.getRegistration)
			r.Post("/", s.register)
			r.Delete("/", s.deregister)
		})
	})

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.origins) == 0 {
		return []string{"*"}
	}
	return s.origins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		err := srv.Shutdown(shutdownCtx)
		s.hub.close()
		s.log.Info("server stopped")
		return err
	})

	return g.Wait()
}

func requestLogger(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.V(1).Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
