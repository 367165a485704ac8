package widget

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// EventKind enumerates the widget events the relay subscribes to.
type EventKind string

const (
	// EventInitialized is the widget's lifecycle confirmation.
	EventInitialized EventKind = "widget:initialized"
	// EventOpenURL asks the page to open a URL in a new browsing context.
	EventOpenURL EventKind = "openurl"
	// EventMessage is a generic message carrying a type.
	EventMessage EventKind = "message"
)

// Message types with dedicated handling.
const (
	MessageTypeUnknown            = "unknown"
	MessageTypeAuthTokenProcessed = "AUTH_TOKEN_PROCESSED"
	MessageTypeExitRequested      = "EXIT_REQUESTED"
)

// FlowCompleteMessage is the notification shown when the widget signals exit.
const FlowCompleteMessage = "Deep link flow complete!"

// Event is one widget event.
type Event struct {
	Kind   EventKind              `json:"kind"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// MessageType returns detail.type, or "unknown" when absent or empty.
func (e Event) MessageType() string {
	if t, ok := e.Detail["type"].(string); ok && t != "" {
		return t
	}
	return MessageTypeUnknown
}

// URL returns detail.url.
func (e Event) URL() string {
	u, _ := e.Detail["url"].(string)
	return u
}

// URLOpener opens an address in a new browsing context.
type URLOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// Notifier shows a blocking user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Statistics counts widget messages. The zero value is not usable; call
// NewStatistics.
type Statistics struct {
	mu                 sync.Mutex
	total              int
	byType             map[string]int
	authTokenProcessed int
}

// NewStatistics returns zeroed counters.
func NewStatistics() *Statistics {
	return &Statistics{byType: make(map[string]int)}
}

// Record counts one message of the given type and returns the running total
// and the anomaly counter.
func (s *Statistics) Record(messageType string) (total, authTokenProcessed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byType[messageType]++
	if messageType == MessageTypeAuthTokenProcessed {
		s.authTokenProcessed++
	}
	return s.total, s.authTokenProcessed
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() models.MessageStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[string]int, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return models.MessageStatistics{
		Total:              s.total,
		ByType:             byType,
		AuthTokenProcessed: s.authTokenProcessed,
	}
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.authTokenProcessed = 0
	s.byType = make(map[string]int)
}

// Relay reacts to the events of an initialized widget.
type Relay struct {
	stats    *Statistics
	opener   URLOpener
	notifier Notifier
	handlers map[EventKind]func(context.Context, Event)
}

// NewRelay builds a relay that counts into stats. opener and notifier may be
// nil, in which case the corresponding reaction is only logged.
func NewRelay(stats *Statistics, opener URLOpener, notifier Notifier) *Relay {
	r := &Relay{stats: stats, opener: opener, notifier: notifier}
	r.handlers = map[EventKind]func(context.Context, Event){
		EventInitialized: r.onInitialized,
		EventOpenURL:     r.onOpenURL,
		EventMessage:     r.onMessage,
	}
	return r
}

// Dispatch routes an event to its handler. Kinds without a handler are ignored.
func (r *Relay) Dispatch(ctx context.Context, ev Event) {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		slog.Debug("Relay.Dispatch: no listener for event kind", "kind", ev.Kind)
		return
	}
	h(ctx, ev)
}

func (r *Relay) onInitialized(ctx context.Context, ev Event) {
	slog.Info("Relay.onInitialized: widget initialized event", "detail", ev.Detail)
}

func (r *Relay) onOpenURL(ctx context.Context, ev Event) {
	url := ev.URL()
	slog.Info("Relay.onOpenURL: URL request", "url", url)
	if url == "" || r.opener == nil {
		return
	}
	if err := r.opener.OpenURL(ctx, url); err != nil {
		slog.Error("Relay.onOpenURL: failed to open URL", "error", err, "url", url)
	}
}

func (r *Relay) onMessage(ctx context.Context, ev Event) {
	messageType := ev.MessageType()
	total, anomalies := r.stats.Record(messageType)

	if messageType == MessageTypeAuthTokenProcessed {
		slog.Warn("Relay.onMessage: AUTH_TOKEN_PROCESSED message", "count", anomalies, "detail", ev.Detail)
	}
	if messageType == MessageTypeExitRequested {
		slog.Info("Relay.onMessage: deep link flow exit detected", "detail", ev.Detail)
		if r.notifier != nil {
			if err := r.notifier.Notify(ctx, FlowCompleteMessage); err != nil {
				slog.Error("Relay.onMessage: failed to deliver flow-complete notification", "error", err)
			}
		}
	}
	slog.Debug("Relay.onMessage: message received", "seq", total, "type", messageType, "detail", ev.Detail)
}
