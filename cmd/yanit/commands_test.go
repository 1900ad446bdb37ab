package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tansu/yanit/internal/api"
	"github.com/tansu/yanit/internal/pipeline"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
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
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
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

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/resolve": `{"reply":"Merhaba! Size nasıl yardımcı olabilirim?","intent":"greeting","confidence":1,"tier":"rule","products":[],"reason":"rule: greeting pattern","latency_ms":2}`,
	})

	client := ts.client()

	req := api.ResolveRequest{
		Tenant:         "butik",
		ConversationID: "conv-1",
		Text:           "merhaba",
	}
	resp, err := client.post(ctx, "/v1/resolve", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result pipeline.Result
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Tier != "rule" {
		t.Errorf("tier = %q, want rule", result.Tier)
	}
	if result.Intent != "greeting" {
		t.Errorf("intent = %q, want greeting", result.Intent)
	}
	if !strings.Contains(result.Reply, "Merhaba") {
		t.Errorf("reply = %q, want a greeting", result.Reply)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Path != "/v1/resolve" {
		t.Errorf("path = %q, want /v1/resolve", r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["tenant"] != "butik" {
		t.Errorf("body.tenant = %v, want butik", body["tenant"])
	}
	if body["text"] != "merhaba" {
		t.Errorf("body.text = %v, want merhaba", body["text"])
	}
	if body["conversation_id"] != "conv-1" {
		t.Errorf("body.conversation_id = %v, want conv-1", body["conversation_id"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention missing args", err.Error())
	}
}

func TestCacheInvalidateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/tenants/butik/cache/invalidate": `{"tenant":"butik","invalidated":7}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/admin/tenants/butik/cache/invalidate", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Tenant      string `json:"tenant"`
		Invalidated int    `json:"invalidated"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Invalidated != 7 {
		t.Errorf("invalidated = %d, want 7", result.Invalidated)
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestCatalogBumpRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/catalog/version/bump": `{"catalog_version":3}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/admin/catalog/version/bump", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		CatalogVersion int64 `json:"catalog_version"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.CatalogVersion != 3 {
		t.Errorf("catalog_version = %d, want 3", result.CatalogVersion)
	}
}

func TestCostsRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/tenants/butik/costs": `{"tenant":"butik","day":"2026-02-11","requests":120,"tier2":40,"tier3":6,"estimated_cost":0.0288,"by_tier":{"rule":74,"retrieval":40,"model":6}}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/admin/tenants/butik/costs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var costs api.CostsResponse
	if err := decodeJSON(resp, &costs); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if costs.Requests != 120 {
		t.Errorf("requests = %d, want 120", costs.Requests)
	}
	if costs.Tier3 != 6 {
		t.Errorf("tier3 = %d, want 6", costs.Tier3)
	}
	if costs.ByTier["retrieval"] != 40 {
		t.Errorf("by_tier[retrieval] = %d, want 40", costs.ByTier["retrieval"])
	}
}

func TestStatusRequest_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusRequest_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientSkipsAuthWithoutToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty when no token configured", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/admin/tenants/butik/costs")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}
