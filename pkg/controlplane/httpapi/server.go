package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/core"
)

// Config tunes the introspection server's listen address and timeouts.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9417"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// Server runs the read-only introspection HTTP surface. It never mediates a
// namespace operation -- all mutation still flows through pkg/controlplane's
// binary protocol -- so, unlike that Server, it carries no request dispatch
// logic beyond chi routing.
//
// Grounded on the teacher's pkg/api.Server: a *http.Server wrapped with a
// once-guarded graceful Stop.
type Server struct {
	server       *http.Server
	cfg          Config
	shutdownOnce sync.Once
}

// NewServer constructs a Server serving inst's introspection routes.
func NewServer(cfg Config, inst *core.Instance) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(inst),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start listens and serves until ctx is cancelled, then gracefully shuts
// down. It returns nil on a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("httpapi server listening", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("httpapi server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("httpapi server shutdown: %w", err)
			logger.Error("httpapi server shutdown error", "error", err)
			return
		}
		logger.Info("httpapi server stopped gracefully")
	})
	return shutdownErr
}
