package replycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tansu/yanit/internal/intent"
)

func decided(i intent.Intent, reply string) intent.Decision {
	return intent.Decision{Intent: i, Confidence: 1, Tier: intent.TierRule, Reply: reply}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint("butik-a", 1, "gecelik var mı")

	if Fingerprint("butik-a", 1, "gecelik var mı") != base {
		t.Error("fingerprint must be deterministic")
	}
	if Fingerprint("butik-b", 1, "gecelik var mı") == base {
		t.Error("fingerprint must vary by tenant")
	}
	if Fingerprint("butik-a", 2, "gecelik var mı") == base {
		t.Error("fingerprint must vary by catalog version")
	}
	if Fingerprint("butik-a", 1, "pijama var mı") == base {
		t.Error("fingerprint must vary by text")
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(Options{})
	key := Fingerprint("butik-a", 1, "merhaba")

	if _, ok := c.Get("butik-a", key); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if !c.Put("butik-a", key, decided(intent.Greeting, "Merhaba!")) {
		t.Fatal("put rejected an admissible decision")
	}
	d, ok := c.Get("butik-a", key)
	if !ok {
		t.Fatal("expected hit")
	}
	if d.Reply != "Merhaba!" {
		t.Errorf("reply = %q", d.Reply)
	}
}

func TestPutRejectsRefusalsAndDeferrals(t *testing.T) {
	c := New(Options{})
	tests := []struct {
		name string
		d    intent.Decision
	}{
		{"refusal tier", intent.Decision{Intent: intent.ClarificationNeeded, Tier: intent.TierRefusal, Reply: "x"}},
		{"model deferral", intent.Decision{Intent: intent.NeedsModel, Tier: intent.TierRule, Reply: "x"}},
		{"empty reply", intent.Decision{Intent: intent.Greeting, Tier: intent.TierRule}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c.Put("butik-a", "k-"+tt.name, tt.d) {
				t.Error("inadmissible decision was cached")
			}
		})
	}
}

func TestPutAdmitsAnsweredModelReply(t *testing.T) {
	c := New(Options{})
	d := intent.Decision{Intent: intent.NeedsModel, Tier: intent.TierModel, Reply: "Elbette!"}
	if !c.Put("butik-a", "k1", d) {
		t.Fatal("answered tier-3 reply was not cached")
	}
	got, ok := c.Get("butik-a", "k1")
	if !ok || got.Reply != "Elbette!" {
		t.Fatalf("Get = %+v, %v, want the cached model reply", got, ok)
	}
}

func TestTTLExpiryByIntentClass(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	c := New(Options{Now: func() time.Time { return *clock }})

	bizKey := Fingerprint("t", 1, "telefon")
	prodKey := Fingerprint("t", 1, "gecelik")
	socialKey := Fingerprint("t", 1, "merhaba")
	c.Put("t", bizKey, decided(intent.BusinessInfo, "0212..."))
	c.Put("t", prodKey, decided(intent.ProductInquiry, "Stokta."))
	c.Put("t", socialKey, decided(intent.Greeting, "Merhaba!"))

	advance := func(d time.Duration) { n := now.Add(d); *clock = n }

	advance(11 * time.Minute)
	if _, ok := c.Get("t", prodKey); ok {
		t.Error("product entry should expire after 10m")
	}
	if _, ok := c.Get("t", socialKey); !ok {
		t.Error("social entry should survive 11m")
	}

	advance(2 * time.Hour)
	if _, ok := c.Get("t", socialKey); ok {
		t.Error("social entry should expire after 1h")
	}
	if _, ok := c.Get("t", bizKey); !ok {
		t.Error("business entry should survive 2h")
	}

	advance(25 * time.Hour)
	if _, ok := c.Get("t", bizKey); ok {
		t.Error("business entry should expire after 24h")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(Options{MaxPerTenant: 3})

	for i := 0; i < 3; i++ {
		c.Put("t", fmt.Sprintf("k%d", i), decided(intent.Greeting, "hi"))
	}
	// Touch k0 so k1 becomes the eviction candidate.
	if _, ok := c.Get("t", "k0"); !ok {
		t.Fatal("k0 missing")
	}
	c.Put("t", "k3", decided(intent.Greeting, "hi"))

	if _, ok := c.Get("t", "k1"); ok {
		t.Error("k1 should have been evicted as least recently used")
	}
	if _, ok := c.Get("t", "k0"); !ok {
		t.Error("k0 was recently used and should survive")
	}
	if c.Len("t") != 3 {
		t.Errorf("Len = %d, want 3", c.Len("t"))
	}
}

func TestInvalidateTenantIsScoped(t *testing.T) {
	c := New(Options{})
	c.Put("a", "k", decided(intent.Greeting, "hi"))
	c.Put("b", "k", decided(intent.Greeting, "hi"))

	if n := c.InvalidateTenant("a"); n != 1 {
		t.Errorf("invalidated %d entries, want 1", n)
	}
	if _, ok := c.Get("a", "k"); ok {
		t.Error("tenant a should be empty")
	}
	if _, ok := c.Get("b", "k"); !ok {
		t.Error("tenant b must be untouched")
	}
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	c := New(Options{})
	key := Fingerprint("t", 1, "gecelik var mı")

	var calls atomic.Int32
	fill := func() (intent.Decision, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond) // hold the flight open
		return decided(intent.ProductInquiry, "Stokta."), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _, err := c.Resolve(context.Background(), "t", key, fill)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			if d.Reply != "Stokta." {
				t.Errorf("reply = %q", d.Reply)
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("fill ran %d times, want 1", n)
	}

	// The flight's result must now serve from cache.
	if _, hit, _ := c.Resolve(context.Background(), "t", key, fill); !hit {
		t.Error("expected cache hit after coalesced fill")
	}
}

func TestResolveErrorNotCached(t *testing.T) {
	c := New(Options{})
	key := Fingerprint("t", 1, "q")

	boom := errors.New("backend down")
	if _, _, err := c.Resolve(context.Background(), "t", key, func() (intent.Decision, error) {
		return intent.Decision{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want backend error", err)
	}

	var calls int
	if _, hit, err := c.Resolve(context.Background(), "t", key, func() (intent.Decision, error) {
		calls++
		return decided(intent.Greeting, "hi"), nil
	}); err != nil || hit {
		t.Fatalf("second resolve: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("fill after error ran %d times, want 1", calls)
	}
}
