package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/docchat/internal/composer"
	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

type mockAsker struct {
	answer composer.Answer
	err    error
	query  string
	userID string
}

func (m *mockAsker) Compose(_ context.Context, query, userID string) (composer.Answer, error) {
	m.query = query
	m.userID = userID
	return m.answer, m.err
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_Ask(t *testing.T) {
	asker := &mockAsker{answer: composer.Answer{
		Text: "The contract expires in June.",
		Sources: []retrieval.RetrievedChunk{
			{
				Content: "Expiry: June 2026",
				Meta:    retrieval.ChunkMeta{FileName: "contract.pdf", ChunkIndex: 4},
				Score:   0.91,
			},
		},
		DocsUsed: 1,
	}}
	handler := mcpAsk(MCPDeps{Asker: asker, Documents: &mockDocuments{}})

	req := makeCallToolRequest("ask", map[string]interface{}{
		"user_id":  "u1",
		"question": "when does the contract expire?",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	if asker.userID != "u1" || asker.query != "when does the contract expire?" {
		t.Errorf("asked (%q, %q)", asker.query, asker.userID)
	}

	var payload struct {
		Answer  string `json:"answer"`
		Sources []struct {
			FileName string  `json:"file_name"`
			Section  int     `json:"section"`
			Score    float32 `json:"score"`
		} `json:"sources"`
		DocsUsed int `json:"docs_used"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Answer != "The contract expires in June." {
		t.Errorf("answer = %q", payload.Answer)
	}
	if len(payload.Sources) != 1 || payload.Sources[0].FileName != "contract.pdf" || payload.Sources[0].Section != 5 {
		t.Errorf("sources = %+v", payload.Sources)
	}
	if payload.DocsUsed != 1 {
		t.Errorf("docs_used = %d", payload.DocsUsed)
	}
}

func TestMCPTool_AskMissingArguments(t *testing.T) {
	handler := mcpAsk(MCPDeps{Asker: &mockAsker{}, Documents: &mockDocuments{}})

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for the missing question")
	}
}

func TestMCPTool_AskComposeFailure(t *testing.T) {
	handler := mcpAsk(MCPDeps{
		Asker:     &mockAsker{err: errors.New("database locked")},
		Documents: &mockDocuments{},
	})

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"user_id":  "u1",
		"question": "anything",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(toolText(t, result), "database locked") {
		t.Errorf("error text = %q", toolText(t, result))
	}
}

func TestMCPTool_ListDocuments(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	docs := &mockDocuments{docs: []storage.Document{
		{FileName: "a.pdf", Status: storage.StatusProcessed, ChunkCount: 3, CreatedAt: created},
	}}
	handler := mcpListDocuments(MCPDeps{Asker: &mockAsker{}, Documents: docs})

	result, err := handler(context.Background(), makeCallToolRequest("list_documents", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var out []struct {
		FileName   string `json:"file_name"`
		Status     string `json:"status"`
		ChunkCount int    `json:"chunk_count"`
		CreatedAt  string `json:"created_at"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(out) != 1 || out[0].FileName != "a.pdf" || out[0].ChunkCount != 3 {
		t.Errorf("documents = %+v", out)
	}
	if out[0].CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("created_at = %q", out[0].CreatedAt)
	}
}
