package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/feature"
	"github.com/tansu/yanit/internal/intent"
	"github.com/tansu/yanit/internal/pipeline"
	"github.com/tansu/yanit/internal/retrieval"
)

type mockSearcher struct {
	results []retrieval.Result
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _ string, _ feature.Set, _ int) ([]retrieval.Result, error) {
	return m.results, m.err
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
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

func TestMCPTool_Ask(t *testing.T) {
	resolver := &mockResolver{res: &pipeline.Result{
		Reply: "Merhaba! 😊", Intent: intent.Greeting, Confidence: 1, Tier: intent.TierRule,
	}}
	handler := mcpAsk(MCPDeps{Resolver: resolver, Tenant: "boutique"})

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"text": "merhaba",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["tier"] != "rule" {
		t.Errorf("tier = %v", got["tier"])
	}
	if got["conversation_id"] == "" {
		t.Error("no conversation id in result")
	}
	if resolver.last.Tenant != "boutique" {
		t.Errorf("tenant = %q", resolver.last.Tenant)
	}
}

func TestMCPTool_AskRequiresText(t *testing.T) {
	handler := mcpAsk(MCPDeps{Resolver: &mockResolver{}, Tenant: "boutique"})

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for missing text")
	}
}

func TestMCPTool_AskResolverFailure(t *testing.T) {
	handler := mcpAsk(MCPDeps{
		Resolver: &mockResolver{err: errors.New("boom")},
		Tenant:   "boutique",
	})

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"text": "merhaba",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "resolution failed") {
		t.Errorf("got %q", toolText(t, result))
	}
}

func TestMCPTool_SearchProducts(t *testing.T) {
	searcher := &mockSearcher{results: []retrieval.Result{
		{Product: catalog.Product{ID: "A", Name: "Saten Kimono", Color: "PUDRA", FinalPrice: 450, Stock: 2}, Score: 0.91},
	}}
	handler := mcpSearchProducts(MCPDeps{Searcher: searcher, Tenant: "boutique"})

	result, err := handler(context.Background(), makeCallToolRequest("search_products", map[string]interface{}{
		"query": "saten kimono",
		"limit": 3,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "A" {
		t.Errorf("results = %v", got)
	}
}

func TestMCPTool_SearchProductsEmpty(t *testing.T) {
	handler := mcpSearchProducts(MCPDeps{Searcher: &mockSearcher{}, Tenant: "boutique"})

	result, err := handler(context.Background(), makeCallToolRequest("search_products", map[string]interface{}{
		"query": "yok böyle bir şey",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toolText(t, result) != "[]" {
		t.Errorf("got %q, want empty array", toolText(t, result))
	}
}

func TestMCPTool_DailyCosts(t *testing.T) {
	governor := budget.New(budget.Limits{}, nil, nil)
	governor.Record("boutique", intent.TierModel, 2000)
	handler := mcpDailyCosts(MCPDeps{Governor: governor, Tenant: "boutique"})

	result, err := handler(context.Background(), makeCallToolRequest("daily_costs", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["tier3"].(float64) != 1 {
		t.Errorf("tier3 = %v", got["tier3"])
	}
	if got["estimated_cost"].(float64) <= 0 {
		t.Errorf("estimated_cost = %v", got["estimated_cost"])
	}
}
