// Package catalog owns the per-tenant product index: products are loaded
// once at startup, enriched with a deterministic rich-text representation and
// optional embeddings, and never mutated at request time.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tansu/yanit/internal/feature"
	"github.com/tansu/yanit/internal/textnorm"
)

// Product is one catalog item. Instances are immutable after load.
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	Price      float64 `json:"price"`
	FinalPrice float64 `json:"final_price"`
	Stock      int     `json:"stock"`
	Category   string  `json:"category"`

	// Derived at load time.
	RichText   string      `json:"-"`
	NormText   string      `json:"-"`
	Features   feature.Set `json:"-"`
	Embedding  []float32   `json:"-"`
}

// Discount returns the percent discount implied by price vs final price,
// or 0 when the product is not discounted.
func (p Product) Discount() float64 {
	if p.Price <= 0 || p.FinalPrice >= p.Price {
		return 0
	}
	return (p.Price - p.FinalPrice) / p.Price * 100
}

// InStock reports whether any units remain.
func (p Product) InStock() bool { return p.Stock > 0 }

// Price bucket boundaries, in the tenant's currency.
const (
	bucketLow  = 1000
	bucketHigh = 2000
)

// PriceBucket partitions prices into the fixed three-band scheme used in
// rich text.
func PriceBucket(price float64) string {
	switch {
	case price < bucketLow:
		return "ekonomik"
	case price <= bucketHigh:
		return "orta segment"
	default:
		return "premium"
	}
}

// buildDerived fills RichText, NormText, and Features. Rich text is the
// deterministic serialization used as the unit of lexical and semantic
// indexing: name | color | category | price bucket | features.
func (p *Product) buildDerived() {
	p.NormText = textnorm.Normalize(p.Name + " " + p.Color).Text
	p.Features = feature.Extract(textnorm.Normalize(p.Name + " " + p.Color + " " + p.Category).Text)

	var feats []string
	for _, f := range p.Features {
		feats = append(feats, f.Canonical)
	}
	p.RichText = strings.Join([]string{
		textnorm.Normalize(p.Name).Text,
		textnorm.Normalize(p.Color).Text,
		textnorm.Normalize(p.Category).Text,
		PriceBucket(p.FinalPrice),
		strings.Join(feats, " "),
	}, " | ")
}

// RichTextHash keys persisted embeddings so restarts do not re-spend on
// unchanged products.
func (p Product) RichTextHash() string {
	sum := sha256.Sum256([]byte(p.RichText))
	return hex.EncodeToString(sum[:])
}

// validate enforces the required catalog fields. Products failing validation
// are dropped at load with a warning.
func (p Product) validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("missing id")
	case p.Name == "":
		return fmt.Errorf("missing name")
	case p.Color == "":
		return fmt.Errorf("missing color")
	case p.Category == "":
		return fmt.Errorf("missing category")
	case p.Price < 0 || p.FinalPrice < 0:
		return fmt.Errorf("negative price")
	case p.FinalPrice == 0 && p.Price == 0:
		return fmt.Errorf("missing price")
	case p.Stock < 0:
		return fmt.Errorf("negative stock")
	}
	return nil
}
