package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/tansu/yanit/internal/intent"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAdmitQueryCapRefuses(t *testing.T) {
	g := New(Limits{DailyQueryCap: 3, DailyBudget: 100, CostPer1K: 0.002}, nil, nil)

	for i := 0; i < 3; i++ {
		if v := g.Admit("t", intent.TierRule, 0); v != Allow {
			t.Fatalf("request %d: verdict = %s, want allow", i, v)
		}
		g.Record("t", intent.TierRule, 0)
	}

	if v := g.Admit("t", intent.TierRule, 0); v != Refuse {
		t.Errorf("over cap: verdict = %s, want refuse", v)
	}
}

func TestAdmitBudgetDowngradesTier3Only(t *testing.T) {
	// Budget fits exactly one 500-token model call.
	g := New(Limits{DailyQueryCap: 100, DailyBudget: 0.001, CostPer1K: 0.002}, nil, nil)

	if v := g.Admit("t", intent.TierModel, 500); v != Allow {
		t.Fatalf("first model call: verdict = %s, want allow", v)
	}
	g.Record("t", intent.TierModel, 500)

	if v := g.Admit("t", intent.TierModel, 500); v != Downgrade {
		t.Errorf("second model call: verdict = %s, want downgrade", v)
	}
	// Cheap tiers still run after the budget is spent.
	if v := g.Admit("t", intent.TierRule, 0); v != Allow {
		t.Errorf("rule tier after budget spent: verdict = %s, want allow", v)
	}
}

func TestCountersMonotoneWithinDay(t *testing.T) {
	g := New(Limits{}, nil, nil)

	prev := g.Snapshot("t")
	tiers := []intent.Tier{intent.TierCache, intent.TierRule, intent.TierRetrieval, intent.TierModel, intent.TierRefusal}
	for i, tier := range tiers {
		g.Record("t", tier, 100)
		cur := g.Snapshot("t")
		if cur.Total != prev.Total+1 {
			t.Errorf("step %d: Total went %d -> %d", i, prev.Total, cur.Total)
		}
		if cur.Tier2 < prev.Tier2 || cur.Tier3 < prev.Tier3 || cur.EstimatedCost < prev.EstimatedCost {
			t.Errorf("step %d: counters decreased: %+v -> %+v", i, prev, cur)
		}
		prev = cur
	}

	if prev.Tier2 != 2 {
		t.Errorf("Tier2 = %d, want 2 (rule + retrieval)", prev.Tier2)
	}
	if prev.Tier3 != 1 {
		t.Errorf("Tier3 = %d, want 1", prev.Tier3)
	}
}

func TestUTCMidnightReset(t *testing.T) {
	clock := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	g := New(Limits{DailyQueryCap: 2}, nil, func() time.Time { return clock })

	g.Record("t", intent.TierModel, 1000)
	g.Record("t", intent.TierModel, 1000)
	if v := g.Admit("t", intent.TierRule, 0); v != Refuse {
		t.Fatalf("before midnight: verdict = %s, want refuse", v)
	}

	clock = time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)

	if v := g.Admit("t", intent.TierRule, 0); v != Allow {
		t.Errorf("after midnight: verdict = %s, want allow", v)
	}
	s := g.Snapshot("t")
	if s.Total != 0 || s.EstimatedCost != 0 {
		t.Errorf("counters not reset at day roll: %+v", s)
	}
	if s.Day != "2025-03-11" {
		t.Errorf("Day = %s, want 2025-03-11", s.Day)
	}
}

func TestTenantsIsolated(t *testing.T) {
	g := New(Limits{DailyQueryCap: 1}, nil, nil)

	g.Record("a", intent.TierRule, 0)
	if v := g.Admit("a", intent.TierRule, 0); v != Refuse {
		t.Errorf("tenant a: verdict = %s, want refuse", v)
	}
	if v := g.Admit("b", intent.TierRule, 0); v != Allow {
		t.Errorf("tenant b: verdict = %s, want allow", v)
	}
}

func TestConcurrentRecords(t *testing.T) {
	g := New(Limits{DailyQueryCap: 1 << 20}, nil, fixedClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)))

	const workers = 8
	const perWorker = 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				g.Record("t", intent.TierModel, 100)
			}
		}()
	}
	wg.Wait()

	s := g.Snapshot("t")
	if s.Total != workers*perWorker {
		t.Errorf("Total = %d, want %d", s.Total, workers*perWorker)
	}
	if s.Tier3 != workers*perWorker {
		t.Errorf("Tier3 = %d, want %d", s.Tier3, workers*perWorker)
	}
}
