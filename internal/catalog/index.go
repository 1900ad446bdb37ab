package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Source yields raw product records from a catalog backend (JSON file, CSV,
// PDF price sheet, or Postgres).
type Source interface {
	Load(ctx context.Context) ([]Product, error)
}

// Embedder turns rich texts into vectors. Implemented by the retrieval
// package's embedding client; catalog only sees the contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache persists vectors keyed by rich-text hash so process
// restarts do not re-spend on the embedding backend.
type EmbeddingCache interface {
	GetEmbedding(hash string) ([]float32, bool, error)
	PutEmbedding(hash string, vec []float32) error
}

// EmbeddingPruner is implemented by caches that can evict vectors for
// products no longer in the catalog. AttachEmbeddings prunes after a
// successful load when the cache supports it.
type EmbeddingPruner interface {
	PruneEmbeddings(keep []string) (int64, error)
}

// embedBatchSize bounds concurrent embedding requests at load time.
const embedBatchSize = 8

// Index is a tenant's read-only product catalog. All reads after Load are
// lock-free; the only mutable field is the catalog version counter.
type Index struct {
	tenant   string
	products []Product
	byID     map[string]*Product
	version  atomic.Int64
}

// Load reads the source, validates and enriches each product, and returns a
// ready index at catalog version 1. Invalid records are dropped with a
// warning, never fatal.
func Load(ctx context.Context, tenant string, src Source) (*Index, error) {
	raw, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog for tenant %s: %w", tenant, err)
	}

	idx := &Index{tenant: tenant, byID: make(map[string]*Product, len(raw))}
	for _, p := range raw {
		if err := p.validate(); err != nil {
			slog.Warn("dropping catalog record", "tenant", tenant, "id", p.ID, "name", p.Name, "error", err)
			continue
		}
		if _, dup := idx.byID[p.ID]; dup {
			slog.Warn("dropping duplicate catalog record", "tenant", tenant, "id", p.ID)
			continue
		}
		p.buildDerived()
		idx.products = append(idx.products, p)
		idx.byID[p.ID] = &idx.products[len(idx.products)-1]
	}
	// byID must point into the final slice; rebuild after appends settled.
	for i := range idx.products {
		idx.byID[idx.products[i].ID] = &idx.products[i]
	}
	idx.version.Store(1)

	slog.Info("catalog loaded", "tenant", tenant, "products", len(idx.products), "dropped", len(raw)-len(idx.products))
	return idx, nil
}

// AttachEmbeddings computes (or restores from cache) an embedding per
// product. Missing embeddings are not fatal: the retriever falls back to
// lexical scoring.
func (ix *Index) AttachEmbeddings(ctx context.Context, emb Embedder, cache EmbeddingCache) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchSize)

	var cached, computed atomic.Int64
	for i := range ix.products {
		p := &ix.products[i]
		g.Go(func() error {
			hash := p.RichTextHash()
			if cache != nil {
				if vec, ok, err := cache.GetEmbedding(hash); err == nil && ok {
					p.Embedding = vec
					cached.Add(1)
					return nil
				}
			}
			vec, err := emb.Embed(gCtx, p.RichText)
			if err != nil {
				return fmt.Errorf("embedding product %s: %w", p.ID, err)
			}
			p.Embedding = vec
			computed.Add(1)
			if cache != nil {
				if err := cache.PutEmbedding(hash, vec); err != nil {
					slog.Warn("persisting embedding failed", "tenant", ix.tenant, "id", p.ID, "error", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("catalog embeddings attached",
		"tenant", ix.tenant, "cached", cached.Load(), "computed", computed.Load())

	// Caches that can drop stale vectors get a chance to do so now, while
	// the full set of live hashes is at hand. Delisted products otherwise
	// accumulate in the cache across reloads.
	if pruner, ok := cache.(EmbeddingPruner); ok {
		keep := make([]string, len(ix.products))
		for i := range ix.products {
			keep[i] = ix.products[i].RichTextHash()
		}
		if n, err := pruner.PruneEmbeddings(keep); err != nil {
			slog.Warn("pruning stale embeddings failed", "tenant", ix.tenant, "error", err)
		} else if n > 0 {
			slog.Info("pruned stale embeddings", "tenant", ix.tenant, "pruned", n)
		}
	}
	return nil
}

// Tenant returns the owning tenant id.
func (ix *Index) Tenant() string { return ix.tenant }

// Products returns the full product slice. Callers must not mutate it.
func (ix *Index) Products() []Product { return ix.products }

// Len returns the product count.
func (ix *Index) Len() int { return len(ix.products) }

// ByID returns the product with the given id.
func (ix *Index) ByID(id string) (Product, bool) {
	p, ok := ix.byID[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// Version returns the current catalog version. It participates in every
// cache fingerprint, so bumping it logically invalidates product replies.
func (ix *Index) Version() int64 { return ix.version.Load() }

// BumpVersion increments the catalog version and returns the new value.
func (ix *Index) BumpVersion() int64 { return ix.version.Add(1) }

// HasEmbeddings reports whether every product carries a vector.
func (ix *Index) HasEmbeddings() bool {
	if len(ix.products) == 0 {
		return false
	}
	for i := range ix.products {
		if len(ix.products[i].Embedding) == 0 {
			return false
		}
	}
	return true
}
