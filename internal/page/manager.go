package page

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/BTreeMap/LaunchPipe/internal/flow"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/params"
	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

// Opts holds configuration options for the Manager.
type Opts struct {
	Snapshots      store.SnapshotStore
	Alerts         *messaging.OperatorAlerts
	AllowedOrigins []string
}

// Option defines a configuration option for the Manager.
type Option func(*Opts)

// WithSnapshotStore persists entry parameters so a reload of the same
// browser without a query string resumes its session.
func WithSnapshotStore(st store.SnapshotStore) Option {
	return func(o *Opts) { o.Snapshots = st }
}

// WithOperatorAlerts copies page notifications to an operator.
func WithOperatorAlerts(a *messaging.OperatorAlerts) Option {
	return func(o *Opts) { o.Alerts = a }
}

// WithAllowedOrigins accepts WebSocket upgrades from these page origins. A
// single "*" accepts any origin. Without this option only same-origin pages
// may connect.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// Manager accepts page connections and tracks their sessions.
type Manager struct {
	provisioner provision.Provisioner
	opts        Opts
	upgrader    websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager that provisions through p.
func NewManager(p provision.Provisioner, opts ...Option) *Manager {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Manager{
		provisioner: p,
		opts:        cfg,
		sessions:    make(map[string]*Session),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(m.opts.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range m.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("Manager.checkOrigin: rejected page origin", "origin", origin)
	return false
}

// ClientQueryParam names the query parameter carrying the browser's client
// id on the /page/ws upgrade request.
const ClientQueryParam = "client"

// ServeHTTP upgrades the request and serves the page until it disconnects.
// Snapshots are stored per browser: under the client id the page sends in
// the "client" query parameter, within the page's Origin header (or the
// origin of the "page" query parameter when the header is absent). A page
// without a valid client id gets no snapshots at all.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Manager.ServeHTTP: upgrade failed", "error", err)
		return
	}
	query := r.URL.Query()
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = params.OriginOf(query.Get("page"))
	}
	clientID := query.Get(ClientQueryParam)
	if clientID != "" && !params.ValidClientID(clientID) {
		slog.Warn("Manager.ServeHTTP: ignoring invalid client id", "origin", origin)
		clientID = ""
	}

	s := newSession(conn, origin)
	notifier := messaging.NewNotifier(s.ID(), s, m.opts.Alerts)
	deps := flow.Dependencies{
		Provisioner: m.provisioner,
		Widgets:     s,
		Opener:      s,
		Notifier:    notifier,
	}
	if m.opts.Snapshots != nil && clientID != "" {
		deps.Snapshots = params.NewSnapshotter(m.opts.Snapshots, origin, clientID, s)
	}
	s.coord = flow.NewSessionCoordinator(deps)

	m.add(s)
	defer m.remove(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Manager.ServeHTTP: page connected", "session_id", s.ID(), "origin", origin, "snapshots", deps.Snapshots != nil)
	if err := s.send(Message{Type: TypeSession, SessionID: s.ID()}); err != nil {
		s.close()
		return
	}
	s.readLoop(ctx)
	s.close()
	cancel()
	s.coord.Wait()
	notifier.Wait()
	slog.Info("Manager.ServeHTTP: page disconnected", "session_id", s.ID())
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	m.wg.Add(1)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		delete(m.sessions, s.ID())
		m.wg.Done()
	}
}

// Get returns a connected session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// IDs returns the ids of all connected sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects every page and waits for their handlers to return.
func (m *Manager) Close() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		s.close()
	}
	m.wg.Wait()
}
