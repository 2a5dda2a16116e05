package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const (
	ToolSearchDocuments = "search_documents"
	ToolAskDocuments    = "ask_documents"
)

// Server exposes retrieval and question answering as MCP tools.
type Server struct {
	query         ports.QueryService
	defaultTenant string
	logger        *slog.Logger
}

func NewServer(query ports.QueryService, defaultTenant string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(defaultTenant) == "" {
		defaultTenant = "default"
	}
	return &Server{query: query, defaultTenant: defaultTenant, logger: logger}
}

func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("company-rag", version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool(ToolSearchDocuments,
		mcp.WithDescription("Search the company knowledge base and return ranked fragments."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("top_k", mcp.Description("Number of fragments; 0 lets the analyzer decide")),
		mcp.WithString("tenant_id", mcp.Description("Tenant whose documents are searched")),
	), s.handleSearch)

	srv.AddTool(mcp.NewTool(ToolAskDocuments,
		mcp.WithDescription("Answer a question from the company documents, with numbered citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
		mcp.WithString("conversation_id", mcp.Description("Continue a stored conversation")),
		mcp.WithNumber("top_k", mcp.Description("Number of fragments; 0 lets the analyzer decide")),
		mcp.WithString("tenant_id", mcp.Description("Tenant whose documents are searched")),
	), s.handleAsk)

	return srv
}

type searchHit struct {
	Rank         int     `json:"rank"`
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	SectionTitle string  `json:"section_title,omitempty"`
	PageNumber   int     `json:"page_number,omitempty"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tenantID := request.GetString("tenant_id", s.defaultTenant)

	results, err := s.query.Search(ctx, tenantID, query, request.GetInt("top_k", 0))
	if err != nil {
		s.logger.Warn("mcp search failed", "tenant_id", tenantID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits := make([]searchHit, 0, len(results))
	for i, r := range results {
		hits = append(hits, searchHit{
			Rank:         i + 1,
			DocumentID:   r.DocumentID,
			Filename:     r.Filename,
			SectionTitle: r.SectionTitle,
			PageNumber:   r.PageNumber,
			Score:        r.Score(),
			Text:         r.Text,
		})
	}
	return jsonResult(map[string]any{"query": query, "results": hits})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tenantID := request.GetString("tenant_id", s.defaultTenant)

	answer, err := s.query.Ask(ctx, domain.AskRequest{
		TenantID:       tenantID,
		UserID:         "mcp",
		ConversationID: request.GetString("conversation_id", ""),
		Question:       question,
		TopK:           request.GetInt("top_k", 0),
	})
	if err != nil {
		s.logger.Warn("mcp ask failed", "tenant_id", tenantID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(renderAnswer(answer)), nil
}

// renderAnswer prints the answer followed by the sources it cited.
func renderAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	if !answer.HasAnswer {
		return b.String()
	}
	first := true
	for i, s := range answer.Sources {
		if !s.Cited {
			continue
		}
		if first {
			b.WriteString("\n\nFontes:")
			first = false
		}
		fmt.Fprintf(&b, "\n[%d] %s", i+1, s.Filename)
		if s.SectionTitle != "" {
			fmt.Fprintf(&b, " - %s", s.SectionTitle)
		}
		if s.PageNumber > 0 {
			fmt.Fprintf(&b, " (p. %d)", s.PageNumber)
		}
	}
	if answer.ConversationID != "" {
		fmt.Fprintf(&b, "\n\nconversation_id: %s", answer.ConversationID)
	}
	return b.String()
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
