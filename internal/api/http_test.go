package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/intent"
	"github.com/tansu/yanit/internal/pipeline"
	"github.com/tansu/yanit/internal/replycache"
	"github.com/tansu/yanit/internal/storage"
)

type mockResolver struct {
	last pipeline.Request
	res  *pipeline.Result
	err  error
}

func (m *mockResolver) Resolve(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

type fixtureSource []catalog.Product

func (s fixtureSource) Load(_ context.Context) ([]catalog.Product, error) { return s, nil }

func testDeps(t *testing.T, resolver *mockResolver) Deps {
	t.Helper()
	index, err := catalog.Load(context.Background(), "boutique", fixtureSource{
		{ID: "A", Name: "Saten Kimono", Color: "PUDRA", Price: 450, FinalPrice: 450, Stock: 2, Category: "sabahlık"},
	})
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	return Deps{
		Resolver: resolver,
		Cache:    replycache.New(replycache.Options{}),
		Index:    index,
		Governor: budget.New(budget.Limits{}, nil, nil),
		Token:    "admin-token",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestResolveEndpoint(t *testing.T) {
	resolver := &mockResolver{res: &pipeline.Result{
		Reply:      "Merhaba! 😊",
		Intent:     intent.Greeting,
		Confidence: 1,
		Tier:       intent.TierRule,
		Products:   []pipeline.ProductSummary{},
		Reason:     "social: matched \"merhaba\"",
		LatencyMS:  2,
	}}
	h := NewHandler(testDeps(t, resolver))

	w := postJSON(t, h, "/v1/resolve",
		`{"tenant":"boutique","conversation_id":"c1","text":"merhaba"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	for _, field := range []string{"reply", "intent", "confidence", "tier", "products", "reason", "latency_ms"} {
		if _, ok := got[field]; !ok {
			t.Errorf("response missing %q", field)
		}
	}
	if got["tier"] != "rule" || got["intent"] != "greeting" {
		t.Errorf("tier=%v intent=%v", got["tier"], got["intent"])
	}
	if resolver.last.Tenant != "boutique" || resolver.last.ConversationID != "c1" {
		t.Errorf("resolver saw %+v", resolver.last)
	}
}

func TestResolveValidation(t *testing.T) {
	h := NewHandler(testDeps(t, &mockResolver{res: &pipeline.Result{}}))

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing tenant", `{"text":"merhaba"}`},
		{"missing text", `{"tenant":"boutique"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, h, "/v1/resolve", tc.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), "invalid_request_error") {
				t.Errorf("body %s lacks the error type", w.Body.String())
			}
		})
	}
}

func TestResolveAssignsConversation(t *testing.T) {
	resolver := &mockResolver{res: &pipeline.Result{Intent: intent.Greeting, Tier: intent.TierRule}}
	h := NewHandler(testDeps(t, resolver))

	w := postJSON(t, h, "/v1/resolve", `{"tenant":"boutique","text":"selam"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resolver.last.ConversationID == "" {
		t.Error("no conversation id assigned")
	}
}

func TestHealth(t *testing.T) {
	h := NewHandler(testDeps(t, &mockResolver{}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestAdminRequiresToken(t *testing.T) {
	h := NewHandler(testDeps(t, &mockResolver{}))

	w := postJSON(t, h, "/admin/tenants/boutique/cache/invalidate", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = postJSON(t, h, "/admin/tenants/boutique/cache/invalidate", "",
		map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
}

func TestAdminInvalidateCache(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Cache.Put("boutique", "k1", intent.Decision{
		Intent: intent.BusinessInfo, Confidence: 0.9, Tier: intent.TierRule, Reply: "x",
	})
	h := NewHandler(deps)

	w := postJSON(t, h, "/admin/tenants/boutique/cache/invalidate", "",
		map[string]string{"Authorization": "Bearer admin-token"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	json.Unmarshal(w.Body.Bytes(), &got)
	if got["invalidated"].(float64) != 1 {
		t.Errorf("invalidated = %v, want 1", got["invalidated"])
	}
	if deps.Cache.Len("boutique") != 0 {
		t.Error("cache still holds entries")
	}
}

func TestAdminBumpVersion(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	before := deps.Index.Version()
	h := NewHandler(deps)

	w := postJSON(t, h, "/admin/catalog/version/bump", "",
		map[string]string{"Authorization": "Bearer admin-token"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if deps.Index.Version() != before+1 {
		t.Errorf("version = %d, want %d", deps.Index.Version(), before+1)
	}
}

func TestAdminCosts(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Governor.Record("boutique", intent.TierRule, 0)
	deps.Governor.Record("boutique", intent.TierModel, 1000)
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/boutique/costs", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var got CostsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Requests != 2 || got.Tier3 != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.EstimatedCost <= 0 {
		t.Errorf("estimated cost = %v, want positive", got.EstimatedCost)
	}
}

func adminGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// auditStore seeds an in-memory store with two boutique records on one day,
// one on the next, and one for an unrelated tenant.
func auditStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	day := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	records := []storage.AuditRecord{
		{ID: "rec-1", Tenant: "boutique", ConversationID: "c1", CreatedAt: day,
			Tier: "retrieval", Intent: "product_inquiry", Confidence: 0.91, LatencyMS: 12},
		{ID: "rec-2", Tenant: "boutique", ConversationID: "c2", CreatedAt: day.Add(2 * time.Hour),
			Tier: "model", Intent: "needs_model", Confidence: 0.7,
			PromptTokens: 100, CompletionTokens: 20, LatencyMS: 840, Cost: 0.004},
		{ID: "rec-3", Tenant: "boutique", ConversationID: "c3", CreatedAt: day.AddDate(0, 0, 1),
			Tier: "rule", Intent: "greeting", Confidence: 1},
		{ID: "rec-4", Tenant: "diger-butik", ConversationID: "c4", CreatedAt: day,
			Tier: "rule", Intent: "greeting", Confidence: 1},
	}
	for _, rec := range records {
		if err := store.SaveAuditRecord(rec); err != nil {
			t.Fatalf("SaveAuditRecord(%s): %v", rec.ID, err)
		}
	}
	return store
}

func TestAdminCostsForStoredDay(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Store = auditStore(t)
	h := NewHandler(deps)

	w := adminGet(t, h, "/admin/tenants/boutique/costs?day=2026-08-27")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got CostsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Day != "2026-08-27" {
		t.Errorf("day = %q", got.Day)
	}
	if got.Requests != 2 || got.Tier2 != 1 || got.Tier3 != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.TotalTokens != 120 {
		t.Errorf("total tokens = %d, want 120", got.TotalTokens)
	}
	if got.EstimatedCost != 0.004 {
		t.Errorf("estimated cost = %v, want 0.004", got.EstimatedCost)
	}
}

func TestAdminCostsDayValidation(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Store = auditStore(t)
	h := NewHandler(deps)

	w := adminGet(t, h, "/admin/tenants/boutique/costs?day=yesterday")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad day: status = %d, want 400", w.Code)
	}

	// Without a store there is no history to answer from.
	bare := NewHandler(testDeps(t, &mockResolver{}))
	w = adminGet(t, bare, "/admin/tenants/boutique/costs?day=2026-08-27")
	if w.Code != http.StatusNotImplemented {
		t.Errorf("no store: status = %d, want 501", w.Code)
	}
}

func TestAdminAuditList(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Store = auditStore(t)
	h := NewHandler(deps)

	w := adminGet(t, h, "/admin/tenants/boutique/audit?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got struct {
		Tenant  string       `json:"tenant"`
		Records []AuditEntry `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].ID != "rec-3" {
		t.Errorf("records = %+v, want just the newest", got.Records)
	}

	w = adminGet(t, h, "/admin/tenants/boutique/audit?limit=0")
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", w.Code)
	}
}

func TestAdminAuditLookup(t *testing.T) {
	deps := testDeps(t, &mockResolver{})
	deps.Store = auditStore(t)
	h := NewHandler(deps)

	w := adminGet(t, h, "/admin/audit/rec-2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got AuditEntry
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Tier != "model" || got.Cost != 0.004 {
		t.Errorf("entry = %+v", got)
	}

	w = adminGet(t, h, "/admin/audit/rec-999")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing id: status = %d, want 404", w.Code)
	}
}
