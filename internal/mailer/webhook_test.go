package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestNewWebhookMailer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{name: "valid endpoint", endpoint: "https://webhook.site/abc-123", wantErr: false},
		{name: "empty endpoint", endpoint: "", wantErr: true},
		{name: "whitespace endpoint", endpoint: "   ", wantErr: true},
		{name: "invalid endpoint", endpoint: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := NewWebhookMailer(tt.endpoint)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewWebhookMailer(%q) expected error, got nil", tt.endpoint)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWebhookMailer(%q) unexpected error: %v", tt.endpoint, err)
			}
			if m == nil {
				t.Fatal("expected mailer, got nil")
			}
		})
	}
}

func TestWebhookMailerSend(t *testing.T) {
	t.Parallel()

	var captured webhookRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("X-Request-ID", "req-42")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m, err := NewWebhookMailer(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookMailer: %v", err)
	}

	result, err := m.Send(context.Background(), Message{
		To:      "user@example.com",
		Subject: "Fresh AI Tools for You",
		HTML:    "<h1>digest</h1>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.MessageID != "req-42" {
		t.Errorf("expected message id req-42, got %q", result.MessageID)
	}
	if captured.To != "user@example.com" {
		t.Errorf("expected to user@example.com, got %q", captured.To)
	}
	if captured.Subject != "Fresh AI Tools for You" {
		t.Errorf("unexpected subject %q", captured.Subject)
	}
	if captured.HTML != "<h1>digest</h1>" {
		t.Errorf("unexpected html %q", captured.HTML)
	}
}

func TestWebhookMailerSendEmptyRecipient(t *testing.T) {
	t.Parallel()

	m, err := NewWebhookMailer("https://webhook.site/abc-123")
	if err != nil {
		t.Fatalf("NewWebhookMailer: %v", err)
	}

	_, err = m.Send(context.Background(), Message{Subject: "s", HTML: "h"})
	if err == nil {
		t.Fatal("expected error for empty recipient, got nil")
	}
	if IsTransient(err) {
		t.Error("empty recipient should be a permanent failure")
	}
}

func TestWebhookMailerSendStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "server error", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway", statusCode: http.StatusBadGateway, wantTransient: true},
		{name: "bad request", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "not found", statusCode: http.StatusNotFound, wantTransient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			m, err := NewWebhookMailer(server.URL)
			if err != nil {
				t.Fatalf("NewWebhookMailer: %v", err)
			}

			_, err = m.Send(context.Background(), Message{To: "user@example.com", Subject: "s", HTML: "h"})
			if err == nil {
				t.Fatalf("expected error for status %d, got nil", tt.statusCode)
			}

			var mailErr *MailError
			if !errors.As(err, &mailErr) {
				t.Fatalf("expected MailError, got %T", err)
			}
			if mailErr.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, mailErr.StatusCode)
			}
			if got := IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestWebhookMailerSendContextCanceled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m, err := NewWebhookMailer(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookMailer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Send(ctx, Message{To: "user@example.com", Subject: "s", HTML: "h"})
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
	if IsTransient(err) {
		t.Error("canceled context should be a permanent failure")
	}
}

func TestNewWebhookMailerWithClient(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookMailerWithClient("https://webhook.site/abc", nil); err == nil {
		t.Fatal("expected error for nil client, got nil")
	}

	m, err := NewWebhookMailerWithClient("https://webhook.site/abc", resty.New())
	if err != nil {
		t.Fatalf("NewWebhookMailerWithClient: %v", err)
	}
	if m == nil {
		t.Fatal("expected mailer, got nil")
	}
}
