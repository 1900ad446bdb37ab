package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/feature"
	"github.com/tansu/yanit/internal/pipeline"
	"github.com/tansu/yanit/internal/retrieval"
	"github.com/tansu/yanit/internal/textnorm"
)

// ProductSearcher abstracts catalog ranking for the MCP layer.
type ProductSearcher interface {
	Search(ctx context.Context, queryText string, feats feature.Set, k int) ([]retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Resolver Resolver
	Searcher ProductSearcher
	Governor *budget.Governor
	Tenant   string
}

// NewMCPServer creates an MCP server exposing the router to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"yanit",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("yanit is a tiered Turkish boutique Q&A router: cached replies, rule routing, catalog retrieval, and a budget-governed model fallback."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Resolve one customer utterance through the tiered router and return the reply with its intent, tier, and confidence."),
			mcp.WithString("text", mcp.Description("Customer utterance, Turkish"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue; omit to start a new one")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Rank the tenant catalog against a free-text query and return scored products."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("daily_costs",
			mcp.WithDescription("Report today's request counters and estimated model spend for the tenant."),
		),
		mcpDailyCosts(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		conversation := req.GetString("conversation_id", "")
		if conversation == "" {
			conversation = uuid.NewString()
		}

		res, err := deps.Resolver.Resolve(ctx, pipeline.Request{
			Tenant:         deps.Tenant,
			ConversationID: conversation,
			Text:           text,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("resolution failed: %v", err)), nil
		}

		out := struct {
			*pipeline.Result
			ConversationID string `json:"conversation_id"`
		}{res, conversation}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		norm := textnorm.Normalize(query).Text
		results, err := deps.Searcher.Search(ctx, norm, feature.Extract(norm), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type productResult struct {
			ID         string  `json:"id"`
			Name       string  `json:"name"`
			Color      string  `json:"color"`
			FinalPrice float64 `json:"final_price"`
			Stock      int     `json:"stock"`
			Score      float64 `json:"score"`
		}
		out := make([]productResult, len(results))
		for i, r := range results {
			out[i] = productResult{
				ID:         r.Product.ID,
				Name:       r.Product.Name,
				Color:      r.Product.Color,
				FinalPrice: r.Product.FinalPrice,
				Stock:      r.Product.Stock,
				Score:      r.Score,
			}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDailyCosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Governor.Snapshot(deps.Tenant)
		b, err := json.Marshal(map[string]any{
			"tenant":         deps.Tenant,
			"requests":       snap.Total,
			"tier2":          snap.Tier2,
			"tier3":          snap.Tier3,
			"estimated_cost": snap.EstimatedCost,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal counters: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
