package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/feature"
)

// Fusion weights. When the semantic term is unavailable its weight is
// redistributed onto the other two.
const (
	weightLexical  = 0.25
	weightFeature  = 0.45
	weightSemantic = 0.30

	weightLexicalNoEmb = 0.35
	weightFeatureNoEmb = 0.65
)

// DefaultMinScore is the score floor below which candidates are dropped.
const DefaultMinScore = 0.35

// ambiguityWindow is the rank-1 to rank-2 gap below which confidence is
// penalized, and also the maximum penalty.
const ambiguityWindow = 0.2

// Breakdown explains how one candidate's final score was assembled.
type Breakdown struct {
	Lexical      float64
	Feature      float64
	Semantic     float64
	SemanticUsed bool
}

func (b Breakdown) String() string {
	if b.SemanticUsed {
		return fmt.Sprintf("lex=%.2f feat=%.2f sem=%.2f", b.Lexical, b.Feature, b.Semantic)
	}
	return fmt.Sprintf("lex=%.2f feat=%.2f", b.Lexical, b.Feature)
}

// Result is one ranked candidate.
type Result struct {
	Product   catalog.Product
	Score     float64
	Breakdown Breakdown
}

// Retriever scores the tenant's catalog against a query. The embedder is
// optional; without it (or when the index has no vectors) ranking falls back
// to lexical and feature scores only.
type Retriever struct {
	index    *catalog.Index
	embedder catalog.Embedder
	minScore float64
	logger   *slog.Logger
}

// New creates a Retriever over the given index. embedder may be nil.
func New(index *catalog.Index, embedder catalog.Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, embedder: embedder, minScore: DefaultMinScore, logger: logger}
}

// Search returns the top k products whose fused score exceeds the floor,
// ranked deterministically. An empty result means no candidate cleared it.
func (r *Retriever) Search(ctx context.Context, queryText string, feats feature.Set, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	var queryVec []float32
	if r.embedder != nil && r.index.HasEmbeddings() {
		vec, err := r.embedder.Embed(ctx, queryText)
		if err != nil {
			// Embedding backends may flap. Ranking must still answer,
			// so fall back to the lexical and feature terms.
			r.logger.Warn("query embedding failed, semantic term skipped", "error", err)
		} else {
			queryVec = vec
		}
	}

	queryTokens := scoringTokens(queryText)
	results := make([]Result, 0, r.index.Len())
	for _, p := range r.index.Products() {
		res := r.score(p, queryTokens, feats, queryVec)
		if res.Score >= r.minScore {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return lessRanked(results[i], results[j]) })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Confidence derives the pipeline's escalation signal from a ranking.
// It is the top score, penalized when the runner-up is close enough to make
// the winner ambiguous. The penalty scales up to ambiguityWindow as the gap
// closes to zero.
func Confidence(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	top := results[0].Score
	if len(results) == 1 {
		return clamp01(top)
	}
	gap := top - results[1].Score
	penalty := ambiguityWindow * (1 - math.Min(gap/ambiguityWindow, 1))
	return clamp01(top - penalty)
}

func (r *Retriever) score(p catalog.Product, queryTokens []string, feats feature.Set, queryVec []float32) Result {
	b := Breakdown{
		Lexical: lexicalScore(queryTokens, p.NormText),
		Feature: featureOverlap(feats, p.Features),
	}

	if queryVec != nil && len(p.Embedding) == len(queryVec) && len(queryVec) > 0 {
		b.Semantic = (cosine(queryVec, p.Embedding) + 1) / 2
		b.SemanticUsed = true
	}

	var final float64
	if b.SemanticUsed {
		final = weightLexical*b.Lexical + weightFeature*b.Feature + weightSemantic*b.Semantic
	} else {
		final = weightLexicalNoEmb*b.Lexical + weightFeatureNoEmb*b.Feature
	}

	return Result{Product: p, Score: final, Breakdown: b}
}

// lessRanked orders by score, then feature overlap, then stock, then price,
// then id. Equal-score ordering must be stable across runs.
func lessRanked(a, b Result) bool {
	if !almostEqual(a.Score, b.Score) {
		return a.Score > b.Score
	}
	if !almostEqual(a.Breakdown.Feature, b.Breakdown.Feature) {
		return a.Breakdown.Feature > b.Breakdown.Feature
	}
	if a.Product.Stock != b.Product.Stock {
		return a.Product.Stock > b.Product.Stock
	}
	if a.Product.FinalPrice != b.Product.FinalPrice {
		return a.Product.FinalPrice < b.Product.FinalPrice
	}
	return a.Product.ID < b.Product.ID
}

// scoringTokens drops tokens too short to carry lexical signal.
func scoringTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		if len([]rune(tok)) >= 3 {
			out = append(out, tok)
		}
	}
	return out
}

// lexicalScore is a token-set match: each query token contributes its best
// similarity against the product's normalized text tokens, averaged.
func lexicalScore(queryTokens []string, normText string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	productTokens := strings.Fields(normText)

	var sum float64
	for _, q := range queryTokens {
		var best float64
		for _, p := range productTokens {
			s := tokenSimilarity(q, p)
			if s > best {
				best = s
			}
			if best == 1 {
				break
			}
		}
		sum += best
	}
	return sum / float64(len(queryTokens))
}

// tokenSimilarity compares two tokens: exact match scores 1, a shared prefix
// of at least three runes scores proportionally to the overlap, anything else
// scores zero. Prefix matching absorbs Turkish suffixation that the lemmatizer
// does not cover.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	common := 0
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			break
		}
		common++
	}
	if common < 3 {
		return 0
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 0.9 * float64(common) / float64(longest)
}

// featureOverlap compares query features against product features per
// category, awarding category_weight x match_type_weight for the best match
// and normalizing by the query's total feature weight. Query-kind features
// describe the question, not the garment, so they are excluded from both
// sides of the ratio.
func featureOverlap(query feature.Set, product feature.Set) float64 {
	var weightSum, awarded float64
	for _, qf := range query {
		if qf.Category == feature.QueryKind {
			continue
		}
		weightSum += qf.Weight

		var best float64
		for _, pf := range product {
			if pf.Category != qf.Category {
				continue
			}
			if w := matchTypeWeight(qf, pf); w > best {
				best = w
			}
		}
		awarded += qf.Weight * best
	}
	if weightSum == 0 {
		return 0
	}
	return awarded / weightSum
}

// matchTypeWeight grades how two same-category features matched:
// exact canonical hit 1.0, via synonym 0.9, via normalization 0.8,
// substring partial 0.7.
func matchTypeWeight(q, p feature.Feature) float64 {
	if q.Canonical == p.Canonical {
		switch {
		case q.Confidence >= 1 && p.Confidence >= 1:
			return 1.0
		case q.Confidence >= 0.9 && p.Confidence >= 0.9:
			return 0.9
		default:
			return 0.8
		}
	}
	if len([]rune(q.Canonical)) >= 4 && len([]rune(p.Canonical)) >= 4 &&
		(strings.Contains(p.Canonical, q.Canonical) || strings.Contains(q.Canonical, p.Canonical)) {
		return 0.7
	}
	return 0
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
