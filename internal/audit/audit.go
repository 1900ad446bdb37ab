// Package audit emits the structured per-request record: a slog line, a
// SQLite row, optionally a Kafka event, and in-memory counters by tier and
// intent.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tansu/yanit/internal/intent"
	"github.com/tansu/yanit/internal/storage"
)

// Record is one resolved request.
type Record struct {
	ID               string        `json:"id"`
	Tenant           string        `json:"tenant"`
	ConversationID   string        `json:"conversation_id"`
	NormText         string        `json:"norm_text"`
	Tier             intent.Tier   `json:"tier"`
	Intent           intent.Intent `json:"intent"`
	Confidence       float64       `json:"confidence"`
	ProductIDs       []string      `json:"product_ids,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Latency          time.Duration `json:"-"`
	LatencyMS        int64         `json:"latency_ms"`
	Cost             float64       `json:"cost"`
	Reason           string        `json:"reason"`
	At               time.Time     `json:"at"`
}

// Publisher forwards records to an event bus. The Kafka publisher implements
// it; tests use fakes.
type Publisher interface {
	Publish(ctx context.Context, key string, record Record) error
}

// Counts aggregate records by tier and by intent.
type Counts struct {
	ByTier   map[intent.Tier]int
	ByIntent map[intent.Intent]int
}

// Auditor fans one record out to every sink. Sinks other than the logger are
// optional and best-effort: a failing sink never fails the request.
type Auditor struct {
	logger    *slog.Logger
	store     *storage.Store
	publisher Publisher

	mu       sync.Mutex
	byTier   map[intent.Tier]int
	byIntent map[intent.Intent]int
}

// New creates an Auditor. store and publisher may be nil.
func New(logger *slog.Logger, store *storage.Store, publisher Publisher) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:    logger,
		store:     store,
		publisher: publisher,
		byTier:    make(map[intent.Tier]int),
		byIntent:  make(map[intent.Intent]int),
	}
}

// Emit records one resolved request. The record's ID and timestamp are filled
// when empty.
func (a *Auditor) Emit(ctx context.Context, r Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	r.LatencyMS = r.Latency.Milliseconds()

	a.logger.Info("request resolved",
		"id", r.ID,
		"tenant", r.Tenant,
		"conversation", r.ConversationID,
		"tier", r.Tier,
		"intent", r.Intent,
		"confidence", r.Confidence,
		"products", len(r.ProductIDs),
		"tokens_in", r.PromptTokens,
		"tokens_out", r.CompletionTokens,
		"latency_ms", r.LatencyMS,
		"cost", r.Cost,
		"reason", r.Reason,
	)

	a.mu.Lock()
	a.byTier[r.Tier]++
	a.byIntent[r.Intent]++
	a.mu.Unlock()

	if a.store != nil {
		ids, _ := json.Marshal(r.ProductIDs)
		err := a.store.SaveAuditRecord(storage.AuditRecord{
			ID:               r.ID,
			Tenant:           r.Tenant,
			ConversationID:   r.ConversationID,
			CreatedAt:        r.At,
			NormText:         r.NormText,
			Tier:             string(r.Tier),
			Intent:           string(r.Intent),
			Confidence:       r.Confidence,
			ProductIDs:       string(ids),
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			LatencyMS:        r.LatencyMS,
			Cost:             r.Cost,
			Reason:           r.Reason,
		})
		if err != nil {
			a.logger.Error("persisting audit record", "id", r.ID, "error", err)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, r.Tenant, r); err != nil {
			a.logger.Error("publishing audit record", "id", r.ID, "error", err)
		}
	}
}

// Snapshot returns a copy of the aggregated counters.
func (a *Auditor) Snapshot() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := Counts{
		ByTier:   make(map[intent.Tier]int, len(a.byTier)),
		ByIntent: make(map[intent.Intent]int, len(a.byIntent)),
	}
	for k, v := range a.byTier {
		c.ByTier[k] = v
	}
	for k, v := range a.byIntent {
		c.ByIntent[k] = v
	}
	return c
}
