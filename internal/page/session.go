package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BTreeMap/LaunchPipe/internal/flow"
	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// maxMessageSize bounds an inbound frame.
	maxMessageSize = 64 * 1024
)

// ErrSessionClosed is returned by commands issued after the page disconnected.
var ErrSessionClosed = errors.New("page session closed")

// Session is one connected page. It is the widget component, URL opener,
// alert surface and navigator of its coordinator.
type Session struct {
	id     string
	origin string
	conn   *websocket.Conn
	coord  *flow.SessionCoordinator
	handle *widget.Handle

	writeMu sync.Mutex

	mu      sync.Mutex
	present bool
	marker  bool
	pending map[string]chan error

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, origin string) *Session {
	s := &Session{
		id:      uuid.NewString(),
		origin:  origin,
		conn:    conn,
		pending: make(map[string]chan error),
		closed:  make(chan struct{}),
	}
	s.handle = widget.NewHandle(s)
	return s
}

// ID returns the session id sent to the page on connect.
func (s *Session) ID() string { return s.id }

// Origin returns the page origin the session's snapshots are stored under.
func (s *Session) Origin() string { return s.origin }

// Coordinator returns the session's coordinator.
func (s *Session) Coordinator() *flow.SessionCoordinator { return s.coord }

// Widget implements flow.WidgetLocator. The widget counts as present once
// the page reported it with widget_state.
func (s *Session) Widget() (*widget.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.present
}

// Initialize sends the initialize command and waits for the page's
// initialize_result, the context or the connection to end.
func (s *Session) Initialize(ctx context.Context, cfg widget.Config) error {
	id := uuid.NewString()
	done := make(chan error, 1)
	s.mu.Lock()
	s.pending[id] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.send(Message{Type: TypeInitialize, ID: id, Config: &cfg}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrSessionClosed
	}
}

// Initialized reports the widget's persisted marker as last seen by the page.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker
}

// MarkInitialized sets the marker on the page.
func (s *Session) MarkInitialized(ctx context.Context) error {
	s.mu.Lock()
	s.marker = true
	s.mu.Unlock()
	return s.send(Message{Type: TypeMarkInitialized})
}

// ClearInitialized removes the marker on the page.
func (s *Session) ClearInitialized(ctx context.Context) error {
	s.mu.Lock()
	s.marker = false
	s.mu.Unlock()
	return s.send(Message{Type: TypeClearInitialized})
}

// OpenURL asks the page to open url in a new browsing context.
func (s *Session) OpenURL(ctx context.Context, url string) error {
	return s.send(Message{Type: TypeOpenURL, URL: url})
}

// Notify shows a blocking alert on the page.
func (s *Session) Notify(ctx context.Context, message string) error {
	return s.send(Message{Type: TypeAlert, Message: message})
}

// Navigate sends the page to address, reloading it.
func (s *Session) Navigate(ctx context.Context, address string) error {
	return s.send(Message{Type: TypeNavigate, URL: address})
}

func (s *Session) send(msg Message) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		slog.Error("Session.send: write failed", "error", err, "session_id", s.id, "type", msg.Type)
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	return nil
}

// readLoop handles inbound messages until the connection fails. Triggers run
// on their own goroutines so the loop keeps serving initialize results.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Session.readLoop: connection closed unexpectedly", "error", err, "session_id", s.id)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Session.readLoop: malformed message", "error", err, "session_id", s.id)
			continue
		}
		s.handleMessage(ctx, msg)
	}
}

func (s *Session) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeWidgetState:
		s.mu.Lock()
		if msg.Present != nil {
			s.present = *msg.Present
		}
		if msg.Initialized != nil {
			s.marker = *msg.Initialized
		}
		s.mu.Unlock()
		slog.Debug("Session.handleMessage: widget state", "session_id", s.id, "present", msg.Present, "initialized", msg.Initialized)

	case TypeTrigger:
		kind := flow.TriggerKind(msg.Trigger)
		if kind != flow.TriggerLoad && kind != flow.TriggerHistory {
			slog.Warn("Session.handleMessage: unknown trigger", "trigger", msg.Trigger, "session_id", s.id)
			return
		}
		s.coord.Fire(ctx, flow.Trigger{Kind: kind, Address: msg.URL})

	case TypeInitializeResult:
		s.mu.Lock()
		done, ok := s.pending[msg.ID]
		s.mu.Unlock()
		if !ok {
			slog.Warn("Session.handleMessage: initialize result without pending call", "id", msg.ID, "session_id", s.id)
			return
		}
		var result error
		if msg.OK == nil || !*msg.OK {
			reason := msg.Error
			if reason == "" {
				reason = "widget rejected initialize"
			}
			result = &widget.InitError{Err: errors.New(reason)}
		}
		select {
		case done <- result:
		default:
			slog.Warn("Session.handleMessage: duplicate initialize result", "id", msg.ID, "session_id", s.id)
		}

	case TypeWidgetEvent:
		s.coord.HandleEvent(ctx, widget.Event{Kind: widget.EventKind(msg.Kind), Detail: msg.Detail})

	case TypeClearParams:
		if err := s.coord.ClearParameters(ctx, msg.URL); err != nil {
			slog.Error("Session.handleMessage: failed to clear stored parameters", "error", err, "session_id", s.id)
		}

	default:
		slog.Warn("Session.handleMessage: unknown message type", "type", msg.Type, "session_id", s.id)
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
