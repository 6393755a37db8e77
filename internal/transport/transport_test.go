package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSegmentsShortText(t *testing.T) {
	got := splitSegments("hello")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v, want the text unchanged", got)
	}
}

func TestSplitSegmentsBreaksOnNewline(t *testing.T) {
	line := strings.Repeat("a", 3000) + "\n"
	text := line + strings.Repeat("b", 3000)

	got := splitSegments(text)
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2", len(got))
	}
	if !strings.HasSuffix(got[0], "\n") {
		t.Error("first segment does not end at the newline")
	}
	if got[0]+got[1] != text {
		t.Error("segments do not reassemble the original text")
	}
}

func TestSplitSegmentsHardCut(t *testing.T) {
	text := strings.Repeat("x", 10000)
	got := splitSegments(text)

	var rebuilt strings.Builder
	for i, seg := range got {
		if n := utf8.RuneCountInString(seg); n > maxSegmentRunes {
			t.Errorf("segment %d has %d runes, exceeds %d", i, n, maxSegmentRunes)
		}
		rebuilt.WriteString(seg)
	}
	if rebuilt.String() != text {
		t.Error("segments do not reassemble the original text")
	}
}

func TestSplitSegmentsMultibyte(t *testing.T) {
	text := strings.Repeat("日本語テキスト\n", 1000)
	for i, seg := range splitSegments(text) {
		if !utf8.ValidString(seg) {
			t.Errorf("segment %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(seg); n > maxSegmentRunes {
			t.Errorf("segment %d has %d runes", i, n)
		}
	}
}

func TestWebhookDeliver(t *testing.T) {
	var payloads []webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		payloads = append(payloads, p)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewWebhookTransport(srv.URL, "secret")
	text := strings.Repeat("long paragraph\n", 600)
	if err := tr.Deliver(context.Background(), "u1", text); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(payloads) < 2 {
		t.Fatalf("got %d payloads, want the text split", len(payloads))
	}
	var rebuilt strings.Builder
	for i, p := range payloads {
		if p.UserID != "u1" {
			t.Errorf("payload %d user = %q", i, p.UserID)
		}
		if p.Segment != i+1 || p.Total != len(payloads) {
			t.Errorf("payload %d numbering = %d/%d", i, p.Segment, p.Total)
		}
		rebuilt.WriteString(p.Text)
	}
	if rebuilt.String() != text {
		t.Error("delivered segments do not reassemble the answer")
	}
}

func TestWebhookDeliverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "downstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewWebhookTransport(srv.URL, "")
	err := tr.Deliver(context.Background(), "u1", "hello")
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want the status code included", err)
	}
}

func TestLogTransportNeverFails(t *testing.T) {
	if err := NewLogTransport().Deliver(context.Background(), "u1", "anything"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}
