// Package messaging delivers user-facing notifications: the blocking page
// alert plus optional copies to an operator over WhatsApp.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// Service is one operator alert channel.
type Service interface {
	// Name identifies the channel in logs.
	Name() string
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

var phoneNumberRegex = regexp.MustCompile(`\D`)

// canonicalizePhone removes all non-numeric characters and requires at
// least 6 digits.
func canonicalizePhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("messaging.canonicalizePhone: canonicalized recipient", "service", service, "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
