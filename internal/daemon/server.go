// Package daemon serves the accounting tracker to the browser extension over
// local HTTP and WebSocket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/message"
	"github.com/runnerr0/sitetime/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Store is the storage surface the daemon needs beyond the tracker.
type Store interface {
	GetStats(ctx context.Context, top int) (*storage.Stats, error)
	PruneChanges(ctx context.Context, olderThan time.Time) (int64, error)
	Watch(ctx context.Context, interval time.Duration, fn func(storage.Change), onErr func(error)) error
}

// Server wires the HTTP routes to a running Tracker.
type Server struct {
	cfg        *config.Config
	tracker    *accounting.Tracker
	store      Store
	dispatcher *message.Dispatcher
	logger     *slog.Logger
	version    string
	started    time.Time
	router     *gin.Engine
}

// New builds the server. The caller owns tracker.Run.
func New(cfg *config.Config, tracker *accounting.Tracker, store Store, logger *slog.Logger, version string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:        cfg,
		tracker:    tracker,
		store:      store,
		dispatcher: message.NewDispatcher(tracker),
		logger:     logger,
		version:    version,
		started:    time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger), corsMiddleware(s.cfg.Daemon.AllowedOrigins))
	if s.cfg.Daemon.AuthToken != "" {
		r.Use(bearerAuth(s.cfg.Daemon.AuthToken, s.logger))
	}
	r.Use(bodyLimit(s.cfg.Daemon.MaxRequestSize))

	r.GET("/status", s.handleStatus)
	r.POST("/message", s.handleMessage)
	r.GET("/ws", s.handleWebSocket)
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. The watcher and prune loops run alongside.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	go s.watchLoop(loopCtx)
	go s.pruneLoop(loopCtx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("daemon listening", "addr", ln.Addr().String(), "version", s.version)
		errc <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
