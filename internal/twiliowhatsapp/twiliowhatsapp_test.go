package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" || sent[0].To != "12345" {
		t.Errorf("unexpected message %+v", sent[0])
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("down")
	if err := mock.SendMessage(context.Background(), "12345", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Sent()) != 0 {
		t.Error("failed send must not be recorded")
	}
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"missing credentials", []Option{WithFromWhats("whatsapp:+1555")}, true},
		{"missing from", []Option{WithAccountSID("AC1"), WithAuthToken("tok")}, true},
		{"complete", []Option{WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("whatsapp:+1555")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Fatal("expected client")
			}
		})
	}
}

var _ Sender = (*Client)(nil)
var _ Sender = (*MockClient)(nil)
