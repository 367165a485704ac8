package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/LaunchPipe/internal/whatsapp"
)

// WhatsAppService sends operator alerts from a linked whatsmeow device.
type WhatsAppService struct {
	client whatsapp.WhatsAppSender
}

// NewWhatsAppService wraps a whatsapp Client or MockClient.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

// Name implements Service.
func (s *WhatsAppService) Name() string { return "whatsapp" }

// ValidateAndCanonicalizeRecipient canonicalizes a phone number to digits,
// the form whatsmeow builds JIDs from.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(s.Name(), recipient)
}

// SendMessage sends body to a canonical recipient.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhatsAppService.SendMessage invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService.SendMessage error", "error", err, "to", to)
		return err
	}
	return nil
}
