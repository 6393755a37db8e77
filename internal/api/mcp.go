package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/docchat/internal/composer"
)

// Asker composes an answer synchronously, outside the batch queue. MCP
// clients hold the connection open, so there is nothing to debounce.
type Asker interface {
	Compose(ctx context.Context, query, userID string) (composer.Answer, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Asker     Asker
	Documents DocumentLister
}

// NewMCPServer creates an MCP server exposing the document collection.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docchat — conversational access to a user's ingested document collection."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the user's ingested documents."),
			mcp.WithString("user_id", mcp.Description("User whose collection to search"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the user's ingested documents with their processing status."),
			mcp.WithString("user_id", mcp.Description("User whose documents to list"), mcp.Required()),
		),
		mcpListDocuments(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Asker.Compose(ctx, question, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}

		type sourceResult struct {
			FileName string  `json:"file_name"`
			Section  int     `json:"section"`
			Score    float32 `json:"score"`
		}
		sources := make([]sourceResult, len(answer.Sources))
		for i, src := range answer.Sources {
			sources[i] = sourceResult{
				FileName: src.Meta.FileName,
				Section:  src.Meta.ChunkIndex + 1,
				Score:    src.Score,
			}
		}

		payload, err := json.Marshal(map[string]any{
			"answer":    answer.Text,
			"sources":   sources,
			"docs_used": answer.DocsUsed,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("encoding answer: %v", err)), nil
		}
		return mcpText(string(payload)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		docs, err := deps.Documents.ListDocumentsByUser(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents: %v", err)), nil
		}

		type docResult struct {
			FileName   string `json:"file_name"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
			CreatedAt  string `json:"created_at"`
		}
		out := make([]docResult, len(docs))
		for i, d := range docs {
			out[i] = docResult{
				FileName:   d.FileName,
				Status:     d.Status,
				ChunkCount: d.ChunkCount,
				CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339),
			}
		}

		payload, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding documents: %v", err)), nil
		}
		return mcpText(string(payload)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
