// Package replycache is the tier-1 reply store: fingerprinted lookups with
// per-intent TTLs, a per-tenant LRU bound, and single-flight miss coalescing.
package replycache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tansu/yanit/internal/intent"
)

// TTLs hold the expiry per intent class.
type TTLs struct {
	BusinessInfo   time.Duration
	ProductInquiry time.Duration
	Social         time.Duration
}

// DefaultTTLs match the shelf life of each reply class: business facts are
// near-static, product replies go stale with stock, small talk sits between.
var DefaultTTLs = TTLs{
	BusinessInfo:   24 * time.Hour,
	ProductInquiry: 10 * time.Minute,
	Social:         time.Hour,
}

// DefaultMaxPerTenant bounds entries per tenant before LRU eviction.
const DefaultMaxPerTenant = 4096

// Options configure a Cache. Zero values fall back to defaults.
type Options struct {
	TTLs         TTLs
	MaxPerTenant int
	Now          func() time.Time
}

// Cache is the tier-1 store. All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	tenants map[string]*tenantCache

	ttls         TTLs
	maxPerTenant int
	now          func() time.Time
	group        singleflight.Group
}

type tenantCache struct {
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type entry struct {
	key       string
	decision  intent.Decision
	expiresAt time.Time
}

// New creates a Cache with the given options.
func New(opts Options) *Cache {
	ttls := opts.TTLs
	if ttls.BusinessInfo == 0 {
		ttls.BusinessInfo = DefaultTTLs.BusinessInfo
	}
	if ttls.ProductInquiry == 0 {
		ttls.ProductInquiry = DefaultTTLs.ProductInquiry
	}
	if ttls.Social == 0 {
		ttls.Social = DefaultTTLs.Social
	}
	max := opts.MaxPerTenant
	if max <= 0 {
		max = DefaultMaxPerTenant
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		tenants:      make(map[string]*tenantCache),
		ttls:         ttls,
		maxPerTenant: max,
		now:          now,
	}
}

// Fingerprint derives the cache key. Folding the catalog version in means a
// catalog mutation logically invalidates every product entry without a scan.
func Fingerprint(tenant string, catalogVersion int64, normText string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", tenant, catalogVersion, normText)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached decision for a key, if present and unexpired.
func (c *Cache) Get(tenant, key string) (intent.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.tenants[tenant]
	if !ok {
		return intent.Decision{}, false
	}
	el, ok := tc.entries[key]
	if !ok {
		return intent.Decision{}, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		tc.order.Remove(el)
		delete(tc.entries, key)
		return intent.Decision{}, false
	}
	tc.order.MoveToFront(el)
	return e.decision, true
}

// Put stores a decision if it is admissible. Refusals and fallback paths are
// never cached: a budget refusal must not outlive its cause.
func (c *Cache) Put(tenant, key string, d intent.Decision) bool {
	if !admissible(d) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.tenants[tenant]
	if !ok {
		tc = &tenantCache{entries: make(map[string]*list.Element), order: list.New()}
		c.tenants[tenant] = tc
	}

	expires := c.now().Add(c.ttlFor(d.Intent))
	if el, ok := tc.entries[key]; ok {
		e := el.Value.(*entry)
		e.decision = d
		e.expiresAt = expires
		tc.order.MoveToFront(el)
		return true
	}

	el := tc.order.PushFront(&entry{key: key, decision: d, expiresAt: expires})
	tc.entries[key] = el

	for len(tc.entries) > c.maxPerTenant {
		oldest := tc.order.Back()
		if oldest == nil {
			break
		}
		tc.order.Remove(oldest)
		delete(tc.entries, oldest.Value.(*entry).key)
	}
	return true
}

// Resolve looks the key up and, on a miss, runs fn exactly once no matter how
// many goroutines miss concurrently. The boolean reports a cache hit.
func (c *Cache) Resolve(ctx context.Context, tenant, key string, fn func() (intent.Decision, error)) (intent.Decision, bool, error) {
	if d, ok := c.Get(tenant, key); ok {
		return d, true, nil
	}

	v, err, _ := c.group.Do(tenant+"|"+key, func() (interface{}, error) {
		// Another waiter may have filled the entry while we queued.
		if d, ok := c.Get(tenant, key); ok {
			return d, nil
		}
		d, err := fn()
		if err != nil {
			return intent.Decision{}, err
		}
		c.Put(tenant, key, d)
		return d, nil
	})
	if err != nil {
		return intent.Decision{}, false, err
	}
	return v.(intent.Decision), false, nil
}

// InvalidateTenant drops every entry for a tenant. Returns the entry count
// removed.
func (c *Cache) InvalidateTenant(tenant string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.tenants[tenant]
	if !ok {
		return 0
	}
	n := len(tc.entries)
	delete(c.tenants, tenant)
	return n
}

// Len reports the live entry count for a tenant, expired entries included
// until their next lookup.
func (c *Cache) Len(tenant string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tc, ok := c.tenants[tenant]; ok {
		return len(tc.entries)
	}
	return 0
}

func (c *Cache) ttlFor(i intent.Intent) time.Duration {
	switch i {
	case intent.BusinessInfo:
		return c.ttls.BusinessInfo
	case intent.ProductInquiry:
		return c.ttls.ProductInquiry
	default:
		return c.ttls.Social
	}
}

// admissible rejects refusals and unanswered deferrals: only decided replies
// from deterministic or successful paths may be served again. A needs_model
// decision stays a deferral until tier 3 has actually answered it.
func admissible(d intent.Decision) bool {
	if d.Tier == intent.TierRefusal {
		return false
	}
	if d.Intent == intent.NeedsModel && d.Tier != intent.TierModel {
		return false
	}
	return d.Reply != ""
}
