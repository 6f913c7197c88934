package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSend_NoWebhookConfigured(t *testing.T) {
	s := NewSender("", "Test")
	// Must not panic or block; console-only mode.
	s.Send("backfill complete for SPY")
}

func TestSend_PostsToWebhook(t *testing.T) {
	received := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "Pricefeed")
	s.Send("Backfill complete for SPY")

	payload := <-received
	if !strings.Contains(payload["text"], "Backfill complete for SPY") {
		t.Errorf("payload text = %q", payload["text"])
	}
	if payload["username"] != "Pricefeed" {
		t.Errorf("username = %q", payload["username"])
	}
}

func TestFormatPayload_DiscordShape(t *testing.T) {
	s := NewSender("https://discord.com/api/webhooks/x", "Pricefeed")
	payload := s.formatPayload("hello")
	if _, ok := payload["content"]; !ok {
		t.Error("expected discord payload to use content field")
	}
}
