package flow

import (
	"context"
	"sync"

	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

// ProvisionCall records one MockProvisioner invocation.
type ProvisionCall struct {
	UserID string
	Locale string
}

// MockProvisioner is a provision.Provisioner for tests. When Gate is set,
// each call signals Entered (if set) and then blocks until Gate yields.
type MockProvisioner struct {
	Token   string
	Err     error
	Gate    chan struct{}
	Entered chan struct{}

	mu    sync.Mutex
	calls []ProvisionCall
}

// NewMockProvisioner returns a provisioner that always succeeds with token.
func NewMockProvisioner(token string) *MockProvisioner {
	return &MockProvisioner{Token: token}
}

// Provision records the call and returns the configured result.
func (p *MockProvisioner) Provision(ctx context.Context, userID, locale string) (provision.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ProvisionCall{UserID: userID, Locale: locale})
	p.mu.Unlock()
	if p.Entered != nil {
		p.Entered <- struct{}{}
	}
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return provision.Result{}, &provision.NetworkError{Err: ctx.Err()}
		}
	}
	if p.Err != nil {
		return provision.Result{}, p.Err
	}
	return provision.Result{Token: p.Token}, nil
}

// Calls returns the recorded calls.
func (p *MockProvisioner) Calls() []ProvisionCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProvisionCall(nil), p.calls...)
}

// MockWidget is a widget.Component and WidgetLocator for tests.
type MockWidget struct {
	InitErr error

	mu      sync.Mutex
	present bool
	marker  bool
	configs []widget.Config
	handle  *widget.Handle
}

// NewMockWidget returns a widget that is present and not yet initialized.
func NewMockWidget() *MockWidget {
	w := &MockWidget{present: true}
	w.handle = widget.NewHandle(w)
	return w
}

// SetPresent toggles whether the page has the widget element.
func (w *MockWidget) SetPresent(present bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.present = present
}

// Widget implements WidgetLocator.
func (w *MockWidget) Widget() (*widget.Handle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle, w.present
}

// Initialize records the config.
func (w *MockWidget) Initialize(ctx context.Context, cfg widget.Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.configs = append(w.configs, cfg)
	return w.InitErr
}

// Initialized reports the marker.
func (w *MockWidget) Initialized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marker
}

// MarkInitialized sets the marker.
func (w *MockWidget) MarkInitialized(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marker = true
	return nil
}

// ClearInitialized clears the marker.
func (w *MockWidget) ClearInitialized(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marker = false
	return nil
}

// Configs returns the configs passed to Initialize.
func (w *MockWidget) Configs() []widget.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]widget.Config(nil), w.configs...)
}

// MockNotifier records notifications and opened URLs.
type MockNotifier struct {
	mu       sync.Mutex
	messages []string
	urls     []string
}

// Notify records message.
func (n *MockNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

// OpenURL records url.
func (n *MockNotifier) OpenURL(ctx context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return nil
}

// Messages returns the recorded notifications.
func (n *MockNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// URLs returns the recorded URLs.
func (n *MockNotifier) URLs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}
