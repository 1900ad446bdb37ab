// Package api exposes the resolver over HTTP and MCP: a public resolve
// endpoint, a health check, and a bearer-protected admin surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tansu/yanit/internal/audit"
	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/pipeline"
	"github.com/tansu/yanit/internal/replycache"
	"github.com/tansu/yanit/internal/storage"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Resolver answers one utterance. *pipeline.Pipeline implements it.
type Resolver interface {
	Resolve(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Deps wires the handler to the service internals. Auditor and Store are
// optional.
type Deps struct {
	Resolver Resolver
	Cache    *replycache.Cache
	Index    *catalog.Index
	Governor *budget.Governor
	Auditor  *audit.Auditor
	Store    *storage.Store
	Token    string
	Logger   *slog.Logger
}

// ResolveRequest is the inbound JSON payload.
type ResolveRequest struct {
	Tenant         string `json:"tenant"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp,omitempty"`
}

// NewHandler builds the public router plus the admin subtree.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/resolve", handleResolve(deps))

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(BearerAuth(deps.Token))
		ar.Post("/tenants/{tenant}/cache/invalidate", handleInvalidateCache(deps))
		ar.Post("/catalog/version/bump", handleBumpVersion(deps))
		ar.Get("/tenants/{tenant}/costs", handleCosts(deps))
		ar.Get("/tenants/{tenant}/audit", handleAuditRecords(deps))
		ar.Get("/audit/{id}", handleAuditRecord(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Tenant == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "tenant is required")
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.ConversationID == "" {
			req.ConversationID = uuid.NewString()
		}

		res, err := deps.Resolver.Resolve(r.Context(), pipeline.Request{
			Tenant:         req.Tenant,
			ConversationID: req.ConversationID,
			Text:           req.Text,
		})
		if err != nil {
			deps.Logger.Error("resolve failed", "tenant", req.Tenant, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "resolution failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func handleInvalidateCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")
		n := deps.Cache.InvalidateTenant(tenant)
		deps.Logger.Info("cache invalidated", "tenant", tenant, "entries", n)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"tenant": tenant, "invalidated": n})
	}
}

func handleBumpVersion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := deps.Index.BumpVersion()
		deps.Logger.Info("catalog version bumped", "tenant", deps.Index.Tenant(), "version", v)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"catalog_version": v})
	}
}

// CostsResponse reports spend for a tenant: today's live counters by
// default, or a durable per-day aggregation when the day parameter is set.
type CostsResponse struct {
	Tenant        string         `json:"tenant"`
	Day           string         `json:"day"`
	Requests      int            `json:"requests"`
	Tier2         int            `json:"tier2"`
	Tier3         int            `json:"tier3"`
	EstimatedCost float64        `json:"estimated_cost"`
	TotalTokens   int            `json:"total_tokens,omitempty"`
	AvgLatencyMS  float64        `json:"avg_latency_ms,omitempty"`
	ByTier        map[string]int `json:"by_tier,omitempty"`
	ByIntent      map[string]int `json:"by_intent,omitempty"`
}

func handleCosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")

		// Historic days come from the audit store; the in-memory counters
		// only cover the current day since process start.
		if day := r.URL.Query().Get("day"); day != "" {
			handleHistoricCosts(deps, w, tenant, day)
			return
		}

		snap := deps.Governor.Snapshot(tenant)

		resp := CostsResponse{
			Tenant:        tenant,
			Day:           time.Now().UTC().Format("2006-01-02"),
			Requests:      snap.Total,
			Tier2:         snap.Tier2,
			Tier3:         snap.Tier3,
			EstimatedCost: snap.EstimatedCost,
		}
		if deps.Auditor != nil {
			counts := deps.Auditor.Snapshot()
			resp.ByTier = make(map[string]int, len(counts.ByTier))
			for k, v := range counts.ByTier {
				resp.ByTier[string(k)] = v
			}
			resp.ByIntent = make(map[string]int, len(counts.ByIntent))
			for k, v := range counts.ByIntent {
				resp.ByIntent[string(k)] = v
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleHistoricCosts(deps Deps, w http.ResponseWriter, tenant, day string) {
	if deps.Store == nil {
		httpError(w, http.StatusNotImplemented, "api_error", "historic usage requires persistent storage")
		return
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "day must be YYYY-MM-DD")
		return
	}

	usage, err := deps.Store.UsageForDay(tenant, day)
	if err != nil {
		deps.Logger.Error("usage query failed", "tenant", tenant, "day", day, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "usage query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CostsResponse{
		Tenant:        tenant,
		Day:           day,
		Requests:      usage.Requests,
		Tier2:         usage.Tier2,
		Tier3:         usage.Tier3,
		EstimatedCost: usage.TotalCost,
		TotalTokens:   usage.TotalTokens,
		AvgLatencyMS:  usage.AvgLatencyMS,
	})
}

// AuditEntry is the wire form of a stored audit record.
type AuditEntry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	Tier           string    `json:"tier"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	LatencyMS      int64     `json:"latency_ms"`
	Cost           float64   `json:"cost"`
	Reason         string    `json:"reason,omitempty"`
}

func auditEntry(rec storage.AuditRecord) AuditEntry {
	return AuditEntry{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		CreatedAt:      rec.CreatedAt,
		Tier:           rec.Tier,
		Intent:         rec.Intent,
		Confidence:     rec.Confidence,
		LatencyMS:      rec.LatencyMS,
		Cost:           rec.Cost,
		Reason:         rec.Reason,
	}
}

func handleAuditRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "audit history requires persistent storage")
			return
		}
		tenant := chi.URLParam(r, "tenant")

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		recs, err := deps.Store.RecentAuditRecords(tenant, limit)
		if err != nil {
			deps.Logger.Error("audit query failed", "tenant", tenant, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "audit query failed")
			return
		}

		entries := make([]AuditEntry, 0, len(recs))
		for _, rec := range recs {
			entries = append(entries, auditEntry(rec))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"tenant": tenant, "records": entries})
	}
}

func handleAuditRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "audit history requires persistent storage")
			return
		}
		id := chi.URLParam(r, "id")

		rec, err := deps.Store.GetAuditRecord(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no audit record %s", id)
			return
		}
		if err != nil {
			deps.Logger.Error("audit lookup failed", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "audit lookup failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(auditEntry(rec))
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
