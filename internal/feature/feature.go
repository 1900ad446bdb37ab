// Package feature extracts typed product attributes from normalized text
// using a declarative pattern table. Extraction is deterministic: the same
// input always yields the same feature set in the same order.
package feature

// Category is the closed attribute category set.
type Category string

const (
	Color       Category = "color"
	GarmentType Category = "garment_type"
	TargetGroup Category = "target_group"
	Style       Category = "style"
	Material    Category = "material"
	Pattern     Category = "pattern"
	Closure     Category = "closure"
	Neckline    Category = "neckline"
	Sleeve      Category = "sleeve"
	Size        Category = "size"
	Occasion    Category = "occasion"
	QueryKind   Category = "query_kind"
)

// Query-kind canonical values.
const (
	KindPrice       = "price"
	KindStock       = "stock"
	KindColor       = "color_inquiry"
	KindSize        = "size_inquiry"
	KindDetail      = "detail"
	KindSearch      = "search"
)

// categoryWeights rank how discriminating a category is for retrieval
// scoring. Higher weight, stronger signal.
var categoryWeights = map[Category]float64{
	GarmentType: 2.0,
	TargetGroup: 1.8,
	QueryKind:   1.6,
	Style:       1.4,
	Color:       1.2,
	Occasion:    0.8,
	Material:    0.8,
	Closure:     0.7,
	Neckline:    0.7,
	Sleeve:      0.7,
	Pattern:     0.6,
	Size:        0.6,
}

// Weight returns the scoring weight for a category.
func Weight(c Category) float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 1.0
}

// Match-type confidence levels.
const (
	confExact   = 1.0
	confSynonym = 0.9
	confPartial = 0.7
)

// Feature is one extracted attribute.
type Feature struct {
	Category   Category `json:"category"`
	Value      string   `json:"value"`
	Canonical  string   `json:"normalized_value"`
	Weight     float64  `json:"weight"`
	Confidence float64  `json:"confidence"`
	Synonyms   []string `json:"synonyms,omitempty"`
}

// Set is an ordered feature collection with category lookups.
type Set []Feature

// ByCategory returns all features of one category in extraction order.
func (s Set) ByCategory(c Category) []Feature {
	var out []Feature
	for _, f := range s {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}

// First returns the first feature of a category, if any.
func (s Set) First(c Category) (Feature, bool) {
	for _, f := range s {
		if f.Category == c {
			return f, true
		}
	}
	return Feature{}, false
}

// Has reports whether any feature of the category was extracted.
func (s Set) Has(c Category) bool {
	_, ok := s.First(c)
	return ok
}

// QueryKindValue returns the canonical query kind, or "" when none was
// extracted.
func (s Set) QueryKindValue() string {
	if f, ok := s.First(QueryKind); ok {
		return f.Canonical
	}
	return ""
}

// WeightSum is the sum of weights across the set, used to normalize
// feature-overlap scores.
func (s Set) WeightSum() float64 {
	var sum float64
	for _, f := range s {
		sum += f.Weight
	}
	return sum
}
