// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"chatdigest/internal/config"
	"chatdigest/internal/gateway/handlers"
	"chatdigest/internal/gateway/middleware"
)

// Deps are the collaborators behind the routes. Scheduler may be nil, in
// which case the job routes are not registered.
type Deps struct {
	Runner    handlers.DigestRunner
	Runs      handlers.RunStore
	Scheduler handlers.JobScheduler
	Checks    map[string]handlers.Check
	Location  *time.Location
	Version   string
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	addr       string
	log        zerolog.Logger
}

// NewServer creates a new gateway server with all routes registered.
func NewServer(cfg config.GatewayConfig, deps Deps, log zerolog.Logger) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthHandler(deps.Version, time.Now(), deps.Checks)).Methods(http.MethodGet)
	handlers.NewDigestHandler(deps.Runner, deps.Runs, deps.Location).RegisterRoutes(router)
	if deps.Scheduler != nil {
		handlers.NewJobHandler(deps.Scheduler).RegisterRoutes(router)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no route for "+r.URL.Path)
	})

	// Recovery -> Logging -> router
	var handler http.Handler = router
	handler = middleware.Logging(log)(handler)
	handler = middleware.Recovery(log)(handler)

	return &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// no write timeout: a digest request lasts as long as the run
			IdleTimeout: 120 * time.Second,
		},
		router: router,
		addr:   cfg.Addr(),
		log:    log,
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down gateway server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}
