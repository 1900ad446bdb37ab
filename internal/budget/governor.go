// Package budget is the cost governor: per-tenant per-UTC-day counters with
// an admission gate that forces down-tier or refusal when limits are hit.
package budget

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tansu/yanit/internal/intent"
)

// Verdict is the admission outcome.
type Verdict string

const (
	Allow     Verdict = "allow"
	Downgrade Verdict = "downgrade"
	Refuse    Verdict = "refuse"
)

// Limits configure one governor. Zero values fall back to defaults.
type Limits struct {
	DailyQueryCap int     // total requests per tenant per day
	DailyBudget   float64 // model spend per tenant per day, USD
	CostPer1K     float64 // estimated model cost per thousand tokens, USD
}

// Defaults size the governor for roughly a million queries a month at about
// a dollar of model spend a day.
var Defaults = Limits{
	DailyQueryCap: 40000,
	DailyBudget:   1.0,
	CostPer1K:     0.002,
}

// Counters are one tenant's usage for one UTC day.
type Counters struct {
	Day           string // YYYY-MM-DD
	Total         int
	Tier2         int
	Tier3         int
	EstimatedCost float64
}

// shardCount spreads tenants over independent locks.
const shardCount = 16

// Governor tracks usage and admits or rejects tier transitions. It never
// touches I/O; every method is a pure in-memory operation.
type Governor struct {
	limits Limits
	now    func() time.Time
	logger *slog.Logger
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	tenants map[string]*Counters
}

// New creates a Governor. now may be nil for wall-clock time.
func New(limits Limits, logger *slog.Logger, now func() time.Time) *Governor {
	if limits.DailyQueryCap <= 0 {
		limits.DailyQueryCap = Defaults.DailyQueryCap
	}
	if limits.DailyBudget <= 0 {
		limits.DailyBudget = Defaults.DailyBudget
	}
	if limits.CostPer1K <= 0 {
		limits.CostPer1K = Defaults.CostPer1K
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Governor{limits: limits, now: now, logger: logger}
	for i := range g.shards {
		g.shards[i].tenants = make(map[string]*Counters)
	}
	return g
}

// Admit decides whether a request may proceed at the given tier.
// Tier-3 admission charges against the daily budget using estimatedTokens;
// the query cap applies to every tier.
func (g *Governor) Admit(tenant string, tier intent.Tier, estimatedTokens int) Verdict {
	s := g.shard(tenant)
	s.mu.Lock()
	defer s.mu.Unlock()

	c := g.countersLocked(s, tenant)

	if c.Total >= g.limits.DailyQueryCap {
		g.logger.Warn("daily query cap reached", "tenant", tenant, "total", c.Total)
		return Refuse
	}

	if tier == intent.TierModel {
		estimate := g.cost(estimatedTokens)
		if c.EstimatedCost+estimate > g.limits.DailyBudget {
			g.logger.Warn("daily budget exhausted, forcing down-tier",
				"tenant", tenant, "spent", c.EstimatedCost, "estimate", estimate)
			return Downgrade
		}
	}
	return Allow
}

// Record updates counters after a request completed at the given tier.
// Counters only grow within a day; the sole reset is the UTC day roll.
func (g *Governor) Record(tenant string, tier intent.Tier, actualTokens int) {
	s := g.shard(tenant)
	s.mu.Lock()
	defer s.mu.Unlock()

	c := g.countersLocked(s, tenant)
	c.Total++
	switch tier {
	case intent.TierRule, intent.TierRetrieval:
		c.Tier2++
	case intent.TierModel:
		c.Tier3++
		c.EstimatedCost += g.cost(actualTokens)
	}
}

// Snapshot returns a copy of today's counters for a tenant.
func (g *Governor) Snapshot(tenant string) Counters {
	s := g.shard(tenant)
	s.mu.Lock()
	defer s.mu.Unlock()
	return *g.countersLocked(s, tenant)
}

// countersLocked fetches the tenant's counters, resetting them when the UTC
// day has rolled since the last touch. Callers hold the shard lock.
func (g *Governor) countersLocked(s *shard, tenant string) *Counters {
	today := g.now().UTC().Format("2006-01-02")
	c, ok := s.tenants[tenant]
	if !ok || c.Day != today {
		c = &Counters{Day: today}
		s.tenants[tenant] = c
	}
	return c
}

// Cost converts a token count to its configured currency estimate.
func (g *Governor) Cost(tokens int) float64 {
	return g.cost(tokens)
}

func (g *Governor) cost(tokens int) float64 {
	return float64(tokens) / 1000 * g.limits.CostPer1K
}

func (g *Governor) shard(tenant string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(tenant); i++ {
		h ^= uint32(tenant[i])
		h *= 16777619
	}
	return &g.shards[h%shardCount]
}
