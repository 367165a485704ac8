// Package api wires the LaunchPipe HTTP server: the task API, the page
// WebSocket endpoint and the session debug routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/page"
	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/store"
	"github.com/BTreeMap/LaunchPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LaunchPipe/internal/whatsapp"
)

// DefaultServerAddress is the address the server listens on when none is configured.
const DefaultServerAddress = ":8080"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string        // listen address
	RedisURL       string        // when set, parameter snapshots live in Redis instead of the task database
	SnapshotTTL    time.Duration // expiry of Redis snapshots, zero keeps them
	AlertRecipient string        // operator phone number for page alert copies
	AllowedOrigins []string      // page origins accepted on /page/ws
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRedisSnapshots stores parameter snapshots in Redis.
func WithRedisSnapshots(url string, ttl time.Duration) Option {
	return func(o *Opts) {
		o.RedisURL = url
		o.SnapshotTTL = ttl
	}
}

// WithAlertRecipient copies page alerts to an operator number.
func WithAlertRecipient(number string) Option {
	return func(o *Opts) { o.AlertRecipient = number }
}

// WithAllowedOrigins sets the page origins accepted on /page/ws.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// Server holds the dependencies for the API handlers.
type Server struct {
	st    store.TaskStore
	pages *page.Manager
	addr  string
	now   func() time.Time
	mux   *http.ServeMux
}

// NewServer creates a Server serving tasks from st and page sessions from pages.
func NewServer(st store.TaskStore, pages *page.Manager, addr string) *Server {
	if addr == "" {
		addr = DefaultServerAddress
	}
	s := &Server{
		st:    st,
		pages: pages,
		addr:  addr,
		now:   time.Now,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/task", s.taskHandler)
	s.mux.HandleFunc("/api/task/complete", s.completeTaskHandler)
	s.mux.HandleFunc("/api/task/delete", s.deleteTaskHandler)
	s.mux.HandleFunc("/api/task/edit", s.editTaskHandler)
	s.mux.HandleFunc("/api/task/order", s.orderTaskHandler)

	s.mux.Handle("/page/ws", s.pages)
	s.mux.HandleFunc("/session", s.listSessionsHandler)
	s.mux.HandleFunc("/session/stats", s.sessionStatsHandler)
	s.mux.HandleFunc("/session/state", s.sessionStateHandler)
	s.mux.HandleFunc("/session/reset", s.resetSessionHandler)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Serve listens until ctx is cancelled, then shuts the HTTP server down and
// disconnects every page.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Serve: listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		err := httpServer.Shutdown(shutdownCtx)
		s.pages.Close()
		return err
	})
	return g.Wait()
}

// Run opens every dependency from the given options and serves until SIGINT
// or SIGTERM. A nil waOpts or twilioOpts leaves that alert channel disabled.
func Run(waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, storeOpts []store.Option, provOpts []provision.Option, apiOpts []Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}
	st, err := store.New(storeCfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var snapshots store.SnapshotStore = st
	if cfg.RedisURL != "" {
		client, err := store.RedisConfig{URL: cfg.RedisURL}.New(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect snapshot redis: %w", err)
		}
		redisSnapshots := store.NewRedisSnapshotStore(client, cfg.SnapshotTTL)
		defer redisSnapshots.Close()
		snapshots = redisSnapshots
		slog.Info("api.Run: parameter snapshots stored in redis")
	}

	provisioner, err := provision.NewClient(provOpts...)
	if err != nil {
		return fmt.Errorf("failed to create provisioning client: %w", err)
	}

	var services []messaging.Service
	if twilioOpts != nil {
		tw, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return fmt.Errorf("failed to create twilio client: %w", err)
		}
		services = append(services, messaging.NewTwilioService(tw))
	}
	if waOpts != nil {
		wa, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		defer wa.Close()
		services = append(services, messaging.NewWhatsAppService(wa))
	}
	alerts := messaging.NewOperatorAlerts(cfg.AlertRecipient, services...)
	if cfg.AlertRecipient != "" && len(services) == 0 {
		slog.Warn("api.Run: alert recipient configured but no alert channel enabled")
	}

	pages := page.NewManager(provisioner,
		page.WithSnapshotStore(snapshots),
		page.WithOperatorAlerts(alerts),
		page.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
	return NewServer(st, pages, cfg.Addr).Serve(ctx)
}
