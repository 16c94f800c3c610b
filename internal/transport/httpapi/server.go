// Package httpapi is the HTTP control surface: task toggles, connectivity
// probe, run history, metrics and profiling.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"chainjobs/internal/job"
	"chainjobs/internal/task/scheduler"
	logx "chainjobs/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8080"

// Controller is the toggle surface. toggle.Service satisfies it.
type Controller interface {
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	CheckConnectivity(ctx context.Context) (string, error)
	Tasks() []scheduler.TaskInfo
}

// RunHistory exposes recent call results. job.Executor satisfies it.
type RunHistory interface {
	History() []job.Result
}

type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

type Server struct {
	cfg     Config
	log     logx.Logger
	ctl     Controller
	runs    RunHistory
	metrics http.Handler

	mu   sync.Mutex
	addr string
}

// New builds the server. metrics may be nil to leave /metrics unmounted.
func New(cfg Config, ctl Controller, runs RunHistory, metrics http.Handler, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, ctl: ctl, runs: runs, metrics: metrics, log: log.With(logx.String("comp", "http"))}
}

// Addr is the bound listen address once Serve is running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve listens and serves until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Addr
	tokenSet := strings.TrimSpace(s.cfg.Token) != ""
	if !tokenSet && !isLoopbackAddr(addr) {
		if !s.cfg.AllowInsecure {
			s.log.Error("http refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("http refused to start: insecure bind")
		}
		s.log.Warn("http running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("http started", logx.String("addr", s.Addr()), logx.Bool("token_set", tokenSet), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		<-stopped
		s.log.Info("http stopped")
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
