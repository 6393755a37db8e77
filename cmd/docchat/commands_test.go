package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestPostMessageRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /messages": `{"status":"queued"}`,
	})

	resp, err := ts.client().post(ctx, "/messages", map[string]string{
		"user_id": "alice",
		"text":    "what changed in v2?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "queued" {
		t.Errorf("status = %q", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["user_id"] != "alice" || body["text"] != "what changed in v2?" {
		t.Errorf("body = %v", body)
	}
}

func TestUploadRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /documents": `{"status":"queued","file_name":"notes.txt"}`,
	})

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("meeting notes"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	resp, err := ts.client().upload(ctx, "/documents", "alice", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["file_name"] != "notes.txt" {
		t.Errorf("file_name = %q", result["file_name"])
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", r.ContentType)
	}
	if !strings.Contains(r.Body, "meeting notes") {
		t.Error("upload body lacks the file content")
	}
	if !strings.Contains(r.Body, `name="user_id"`) || !strings.Contains(r.Body, "alice") {
		t.Error("upload body lacks the user_id field")
	}
}

func TestUploadMissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	if _, err := ts.client().upload(ctx, "/documents", "alice", filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Fatal("expected an error for a missing local file")
	}
	if len(ts.requests) != 0 {
		t.Error("no request should be sent for a missing file")
	}
}

func TestDecodeJSONErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]any
	if err := decodeJSON(resp, &out); err == nil {
		t.Fatal("expected an error for a 404 response")
	} else if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want the status included", err)
	}
}

func TestAskCommandRequiresUser(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	defer func() { userFlag = "" }()

	rootCmd.SetArgs([]string{"ask", "anything"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error without --user")
	}
}

func TestColorizeRespectsNoColor(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorGreen, "hello"); strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorGreen, "hello"); !strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
