package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LaunchPipe/internal/whatsapp"
)

// Ensure both channels implement Service
func TestServicesImplementService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	wa := NewWhatsAppService(whatsapp.NewMockClient())
	tw := NewTwilioService(twiliowhatsapp.NewMockClient())

	tests := []struct {
		name      string
		input     string
		whatsapp  string
		twilio    string
		expectErr bool
	}{
		{"formatted number", "+1 (555) 123-4567", "15551234567", "+15551234567", false},
		{"digits only", "15551234567", "15551234567", "+15551234567", false},
		{"empty", "", "", "", true},
		{"no digits", "abc", "", "", true},
		{"too short", "+123", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wa.ValidateAndCanonicalizeRecipient(tt.input)
			if (err != nil) != tt.expectErr {
				t.Fatalf("whatsapp: error = %v, expectErr %v", err, tt.expectErr)
			}
			if got != tt.whatsapp {
				t.Errorf("whatsapp: expected %q, got %q", tt.whatsapp, got)
			}
			got, err = tw.ValidateAndCanonicalizeRecipient(tt.input)
			if (err != nil) != tt.expectErr {
				t.Fatalf("twilio: error = %v, expectErr %v", err, tt.expectErr)
			}
			if got != tt.twilio {
				t.Errorf("twilio: expected %q, got %q", tt.twilio, got)
			}
		})
	}
}

type pageRecorder struct {
	messages []string
	err      error
}

func (p *pageRecorder) Notify(ctx context.Context, message string) error {
	p.messages = append(p.messages, message)
	return p.err
}

func TestNotifierFansOutToOperators(t *testing.T) {
	ctx := context.Background()
	wa := whatsapp.NewMockClient()
	tw := twiliowhatsapp.NewMockClient()
	alerts := NewOperatorAlerts("+1 555 123 4567", NewWhatsAppService(wa), NewTwilioService(tw))
	page := &pageRecorder{}

	n := NewNotifier("s-1", page, alerts)
	if err := n.Notify(ctx, "Deep link flow complete!"); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	n.Wait()

	if len(page.messages) != 1 || page.messages[0] != "Deep link flow complete!" {
		t.Errorf("unexpected page messages %v", page.messages)
	}
	if len(wa.Sent) != 1 || wa.Sent[0] != "15551234567: [session s-1] Deep link flow complete!" {
		t.Errorf("unexpected whatsapp messages %v", wa.Sent)
	}
	sent := tw.Sent()
	if len(sent) != 1 || sent[0].To != "+15551234567" {
		t.Errorf("unexpected twilio messages %v", sent)
	}
}

func TestNotifierOperatorFailureDoesNotFailPage(t *testing.T) {
	tw := twiliowhatsapp.NewMockClient()
	tw.Err = errors.New("twilio down")
	wa := whatsapp.NewMockClient()
	n := NewNotifier("s-2", &pageRecorder{}, NewOperatorAlerts("15551234567", NewTwilioService(tw), NewWhatsAppService(wa)))

	if err := n.Notify(context.Background(), "x"); err != nil {
		t.Fatalf("operator failure must not surface: %v", err)
	}
	n.Wait()
	if len(wa.Sent) != 1 {
		t.Errorf("remaining services must still be tried, got %v", wa.Sent)
	}
}

// blockingService holds every send until release is closed.
type blockingService struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingService) Name() string { return "blocking" }

func (b *blockingService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (b *blockingService) SendMessage(ctx context.Context, to string, body string) error {
	close(b.started)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNotifierDoesNotWaitForOperators(t *testing.T) {
	svc := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	page := &pageRecorder{}
	n := NewNotifier("s-4", page, NewOperatorAlerts("15551234567", svc))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Notify(ctx, "Deep link flow complete!") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Notify returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a slow operator channel")
	}
	if len(page.messages) != 1 {
		t.Errorf("page alert must be shown before Notify returns, got %v", page.messages)
	}

	<-svc.started
	// The page going away must not abort the operator copy.
	cancel()
	finished := make(chan struct{})
	go func() {
		n.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		t.Fatal("operator copy ended before it was released")
	case <-time.After(50 * time.Millisecond):
	}
	close(svc.release)
	n.Wait()
}

func TestNotifierReturnsPageError(t *testing.T) {
	n := NewNotifier("s-3", &pageRecorder{err: errors.New("closed")}, nil)
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Fatal("expected page error")
	}
}

func TestOperatorAlertsJoinErrors(t *testing.T) {
	tw := twiliowhatsapp.NewMockClient()
	tw.Err = errors.New("twilio down")
	alerts := NewOperatorAlerts("123", NewTwilioService(tw), NewWhatsAppService(whatsapp.NewMockClient()))

	err := alerts.Send(context.Background(), "s", "m")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "twilio") || !strings.Contains(err.Error(), "whatsapp") {
		t.Errorf("expected both services in error, got %v", err)
	}
}

func TestOperatorAlertsDisabled(t *testing.T) {
	var nilAlerts *OperatorAlerts
	if nilAlerts.Enabled() {
		t.Error("nil alerts must be disabled")
	}
	if NewOperatorAlerts("").Enabled() {
		t.Error("alerts without recipient must be disabled")
	}
	if err := NewOperatorAlerts("", NewWhatsAppService(whatsapp.NewMockClient())).Send(context.Background(), "s", "m"); err != nil {
		t.Errorf("disabled alerts must not fail: %v", err)
	}
}
