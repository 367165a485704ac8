package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/LaunchPipe/internal/twiliowhatsapp"
)

// TwilioService sends operator alerts through Twilio's WhatsApp API.
type TwilioService struct {
	client twiliowhatsapp.Sender
}

// NewTwilioService wraps a Twilio client or MockClient.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// Name implements Service.
func (s *TwilioService) Name() string { return "twilio" }

// ValidateAndCanonicalizeRecipient canonicalizes a phone number; Twilio
// prefixes it with '+'.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(s.Name(), recipient)
	if err != nil {
		return "", err
	}
	return "+" + canonical, nil
}

// SendMessage sends body to a canonical recipient.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("TwilioService.SendMessage invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("TwilioService.SendMessage error", "error", err, "to", to)
		return err
	}
	return nil
}
