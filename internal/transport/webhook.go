package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookTransport POSTs responses to a configured endpoint, one JSON
// payload per segment. The receiving side forwards them to the user's
// chat client.
type WebhookTransport struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookTransport creates a WebhookTransport delivering to url. If
// token is non-empty it is sent as a bearer token.
func NewWebhookTransport(url, token string) *WebhookTransport {
	return &WebhookTransport{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookPayload struct {
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
	Segment int    `json:"segment"`
	Total   int    `json:"total"`
}

// Deliver sends the text, split into transport-safe segments, in order.
// Delivery stops at the first failing segment.
func (t *WebhookTransport) Deliver(ctx context.Context, userID, text string) error {
	segments := splitSegments(text)
	for i, segment := range segments {
		payload := webhookPayload{
			UserID:  userID,
			Text:    segment,
			Segment: i + 1,
			Total:   len(segments),
		}
		if err := t.post(ctx, payload); err != nil {
			return fmt.Errorf("delivering segment %d/%d: %w", i+1, len(segments), err)
		}
	}
	return nil
}

func (t *WebhookTransport) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
