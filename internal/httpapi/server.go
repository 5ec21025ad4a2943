// Package httpapi serves a read-only JSON view of the admin panel state on a
// loopback address.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"adminpanel/internal/notifier"
	rtsup "adminpanel/internal/runtime/supervisor"
	"adminpanel/internal/storage"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

const DefaultAddr = "127.0.0.1:8088"

type Config struct {
	Addr  string
	Pprof bool
}

type Store interface {
	GetUnresolvedAlerts(ctx context.Context) ([]storage.Alert, error)
	GetRecentActivities(ctx context.Context, limit int) ([]storage.ActivityRecord, error)
	GetUser(ctx context.Context, userID int64) (storage.User, error)
	Stats(ctx context.Context) (storage.Stats, error)
	Ping(ctx context.Context) error
}

type ResourceChecker interface {
	CheckResources(ctx context.Context) (sysstat.Usage, error)
}

// NotificationLog lists recently delivered notifications.
type NotificationLog interface {
	Snapshot() []notifier.HistoryItem
}

type Option func(*handler)

// WithNotifications serves GET /api/notifications from nl.
func WithNotifications(nl NotificationLog) Option {
	return func(h *handler) { h.notifications = nl }
}

// WithRuntime adds goroutine counters to GET /api/stats. fn may be called
// before the runtime has started.
func WithRuntime(fn func() rtsup.Counters) Option {
	return func(h *handler) { h.runtime = fn }
}

type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        logx.Logger
}

func New(cfg Config, st Store, mon ResourceChecker, log logx.Logger, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, errors.New("httpapi: store is required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if err := ValidateLoopback(addr); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	h := &handler{store: st, monitor: mon, log: log}
	for _, o := range opts {
		o(h)
	}
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLog(log),
		middleware.Timeout(15*time.Second),
	)
	router.Get("/healthz", h.healthz)
	router.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/alerts", h.alerts)
		r.Get("/activities", h.activities)
		r.Get("/users/{userID}", h.user)
		r.Get("/resources", h.resources)
		r.Get("/notifications", h.notificationList)
	})
	if cfg.Pprof {
		router.Mount("/debug", middleware.Profiler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router: router,
		log:    log,
	}, nil
}

// Handler exposes the router (tests).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.httpServer.Addr }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("http api stopped")
	return nil
}

// ValidateLoopback rejects listen addresses that are not bound to loopback.
func ValidateLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("httpapi: addr %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("httpapi: addr %q must bind a loopback address", addr)
	}
	return nil
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("dur", time.Since(start)),
				logx.String("rid", middleware.GetReqID(r.Context())),
			)
		})
	}
}
