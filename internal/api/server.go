package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	rtsup "winova/internal/runtime/supervisor"
	logx "winova/pkg/logx"
)

type ServerConfig struct {
	Enabled         bool
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server runs the HTTP listener under a supervisor.
type Server struct {
	mu sync.Mutex

	cfg     ServerConfig
	handler http.Handler
	log     logx.Logger

	srv  *http.Server
	addr net.Addr
	sup  *rtsup.Supervisor
}

func NewServer(cfg ServerConfig, handler http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, handler: handler, log: log}
}

// Start binds the listener and serves in the background. It is a no-op when
// disabled or already running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.srv = srv
	s.addr = ln.Addr()
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.Go("http.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
			return err
		}
		return nil
	})
	s.log.Info("http listening", logx.String("addr", s.addr.String()))
	return nil
}

// Addr is the bound address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.addr = nil, nil, nil
	timeout := s.cfg.ShutdownTimeout
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := srv.Shutdown(sctx)
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(sctx)
	}
	return err
}
