// Package debugsrv runs an optional local HTTP listener with pprof and a
// JSON status endpoint for long-running watch sessions.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	logx "alerticorn/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Addr                 string
	BlockProfileRate     int
	MutexProfileFraction int
}

// StatusFunc returns the value served as JSON at /debug/alerticorn.
type StatusFunc func() any

type Server struct {
	mu     sync.Mutex
	log    logx.Logger
	status StatusFunc
	srv    *http.Server
	addr   string
}

func New(log logx.Logger, status StatusFunc) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log.With(logx.String("comp", "debug")), status: status}
}

// Start listens on cfg.Addr. A running server is restarted only when the
// address changes.
func (s *Server) Start(cfg Config) error {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil && s.addr == cfg.Addr {
		return nil
	}
	s.stopLocked(context.Background())

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.mux(), ReadHeaderTimeout: 5 * time.Second}
	s.srv = srv
	s.addr = ln.Addr().String()
	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("debug server enabled", logx.String("addr", addr))
	return nil
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/alerticorn", func(w http.ResponseWriter, r *http.Request) {
		var v any = struct{}{}
		if s.status != nil {
			v = s.status()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	})
	return mux
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, addr := s.srv, s.addr
	s.srv, s.addr = nil, ""

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("debug server shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	s.log.Info("debug server disabled", logx.String("addr", addr))
}

// Addr is the bound address, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
