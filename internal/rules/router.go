// Package rules is the deterministic tier-2 router: a fixed-order stack of
// pattern layers that either decides an utterance outright or defers it to
// retrieval and the model.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tansu/yanit/internal/feature"
	"github.com/tansu/yanit/internal/intent"
	"github.com/tansu/yanit/internal/textnorm"
)

// minAlphaRatio is the nonsense guard's letter-density floor.
const minAlphaRatio = 0.3

// SessionView is the slice of conversation state the router needs. The
// pipeline fills it from the session store.
type SessionView struct {
	PriorTurns      int
	RecentSatisfied bool
	LastProductName string
}

// Router evaluates the rule layers in fixed order; the first match wins.
type Router struct {
	vocab  map[string]bool
	logger *slog.Logger
}

// New builds a Router. extraVocab extends the nonsense guard's dictionary,
// typically with the tenant's catalog tokens.
func New(logger *slog.Logger, extraVocab ...string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	vocab := feature.Vocabulary()
	for _, tbl := range [][]string{
		greetingPatterns, thanksPatterns, farewellPatterns,
		complimentPatterns, complaintPatterns, humanTransferPatterns,
		satisfactionTokens, commonWords,
	} {
		for _, phrase := range tbl {
			for _, w := range strings.Fields(phrase) {
				vocab[w] = true
			}
		}
	}
	for _, bp := range businessPatterns {
		for _, phrase := range bp.Words {
			for _, w := range strings.Fields(phrase) {
				vocab[w] = true
			}
		}
	}
	for _, w := range extraVocab {
		for _, f := range strings.Fields(strings.ToLower(w)) {
			vocab[f] = true
		}
	}
	return &Router{vocab: vocab, logger: logger}
}

// commonWords are everyday Turkish function words that should never trip the
// nonsense guard on their own.
var commonWords = []string{
	"ne", "nasıl", "nerede", "nereden", "neden", "niye", "kim", "hangi",
	"kaç", "mi", "mı", "mu", "mü", "bu", "şu", "o", "bir", "ve", "ile",
	"için", "ben", "sen", "siz", "biz", "evet", "hayır", "belki", "acaba",
	"lütfen", "rica", "ederim", "istiyorum", "bakmıştım", "soracaktım",
}

// Route runs the layers and always returns a decision; NeedsModel means no
// layer claimed the utterance.
func (r *Router) Route(u textnorm.Utterance, feats feature.Set, sess SessionView) intent.Decision {
	if d, ok := r.emptyOrTooShort(u); ok {
		return d
	}
	if d, ok := r.nonsenseGuard(u); ok {
		return d
	}
	if d, ok := r.social(u, feats, sess); ok {
		return d
	}
	if d, ok := r.businessInfo(u, feats); ok {
		return d
	}
	if d, ok := r.incompleteQuery(u, feats, sess); ok {
		return d
	}
	if d, ok := r.productIntent(feats); ok {
		return d
	}
	return intent.Decision{
		Intent:     intent.NeedsModel,
		Confidence: 0.5,
		Tier:       intent.TierRule,
		Reason:     "defer: no rule layer matched",
	}
}

func (r *Router) emptyOrTooShort(u textnorm.Utterance) (intent.Decision, bool) {
	if u.Length >= 2 {
		return intent.Decision{}, false
	}
	return intent.Decision{
		Intent:     intent.ClarificationNeeded,
		Confidence: 1,
		Tier:       intent.TierRule,
		Reason:     "input: empty or too short",
	}, true
}

func (r *Router) nonsenseGuard(u textnorm.Utterance) (intent.Decision, bool) {
	if u.AlphaRatio < minAlphaRatio {
		return intent.Decision{
			Intent:     intent.ClarificationNeeded,
			Confidence: 1,
			Tier:       intent.TierRule,
			Reason:     fmt.Sprintf("nonsense: alpha ratio %.2f below %.2f", u.AlphaRatio, minAlphaRatio),
		}, true
	}

	known := 0
	checked := 0
	for _, tok := range u.Tokens {
		if tok.Short {
			continue
		}
		checked++
		// Tokens keep trailing punctuation; the dictionary holds bare words.
		if r.vocab[strings.Trim(tok.Text, ".,!?'-")] {
			known++
		}
	}
	if checked > 0 && known == 0 {
		return intent.Decision{
			Intent:     intent.ClarificationNeeded,
			Confidence: 1,
			Tier:       intent.TierRule,
			Reason:     "nonsense: no token in dictionary",
		}, true
	}
	return intent.Decision{}, false
}

// socialTable pairs one intent with its pattern list, in evaluation order.
// Transfer and complaint come first so "yetkili istiyorum, berbat" never
// reads as small talk.
var socialTables = []struct {
	Intent   intent.Intent
	Patterns []string
}{
	{intent.HumanTransfer, humanTransferPatterns},
	{intent.Complaint, complaintPatterns},
	{intent.Thanks, thanksPatterns},
	{intent.Farewell, farewellPatterns},
	{intent.Compliment, complimentPatterns},
	{intent.Greeting, greetingPatterns},
}

func (r *Router) social(u textnorm.Utterance, feats feature.Set, sess SessionView) (intent.Decision, bool) {
	// Product talk wins over pleasantries: "merhaba gecelik var mı" must
	// reach retrieval.
	if feats.Has(feature.GarmentType) {
		return intent.Decision{}, false
	}

	for _, tbl := range socialTables {
		for _, pattern := range tbl.Patterns {
			conf, ok := matchPhrase(u, pattern)
			if !ok {
				continue
			}
			return intent.Decision{
				Intent:     tbl.Intent,
				Confidence: conf,
				Tier:       intent.TierRule,
				Reason:     fmt.Sprintf("social: matched %q", pattern),
			}, true
		}
	}

	if conf, ok := matchPhrase(u, ambiguousDayGreeting); ok {
		which := intent.Greeting
		if sess.PriorTurns >= 1 && sess.RecentSatisfied {
			which = intent.Farewell
		}
		return intent.Decision{
			Intent:     which,
			Confidence: conf,
			Tier:       intent.TierRule,
			Reason:     fmt.Sprintf("social: %q resolved to %s by session turns", ambiguousDayGreeting, which),
		}, true
	}

	return intent.Decision{}, false
}

func (r *Router) businessInfo(u textnorm.Utterance, feats feature.Set) (intent.Decision, bool) {
	hasGarment := feats.Has(feature.GarmentType)
	for _, bp := range businessPatterns {
		if bp.excludeOnGarment && hasGarment {
			continue
		}
		for _, word := range bp.Words {
			if _, ok := matchPhrase(u, word); !ok {
				continue
			}
			return intent.Decision{
				Intent:     intent.BusinessInfo,
				Confidence: 0.9,
				Tier:       intent.TierRule,
				FunctionCall: &intent.FunctionCall{
					Name:     "getGeneralInfo",
					InfoType: bp.InfoType,
				},
				Reason: fmt.Sprintf("business: matched %q as %s", word, bp.InfoType),
			}, true
		}
	}
	return intent.Decision{}, false
}

// incompleteQuery handles a bare query kind ("fiyatı ne kadar") with no
// product mention. With a session referent it becomes a follow-up product
// inquiry; without one, a clarification request.
func (r *Router) incompleteQuery(u textnorm.Utterance, feats feature.Set, sess SessionView) (intent.Decision, bool) {
	kind := feats.QueryKindValue()
	if kind == "" || kind == feature.KindSearch {
		return intent.Decision{}, false
	}
	if feats.Has(feature.GarmentType) || feats.Has(feature.TargetGroup) || feats.Has(feature.Color) {
		return intent.Decision{}, false
	}

	if sess.LastProductName != "" {
		return intent.Decision{
			Intent:     intent.ProductInquiry,
			Confidence: 0.85,
			Tier:       intent.TierRule,
			FunctionCall: &intent.FunctionCall{
				Name:        "getProductInfo",
				ProductName: sess.LastProductName,
				QueryType:   queryType(kind),
			},
			Reason: fmt.Sprintf("followup: %s applied to session referent", kind),
		}, true
	}

	return intent.Decision{
		Intent:     intent.ClarificationNeeded,
		Confidence: 0.9,
		Tier:       intent.TierRule,
		FunctionCall: &intent.FunctionCall{
			Name:      "getProductInfo",
			QueryType: queryType(kind),
		},
		Reason: fmt.Sprintf("incomplete: %s query without a product", kind),
	}, true
}

func (r *Router) productIntent(feats feature.Set) (intent.Decision, bool) {
	if !feats.Has(feature.GarmentType) && !feats.Has(feature.TargetGroup) && !feats.Has(feature.Color) {
		return intent.Decision{}, false
	}

	var named []string
	for _, c := range []feature.Category{feature.GarmentType, feature.TargetGroup, feature.Color} {
		if f, ok := feats.First(c); ok {
			named = append(named, fmt.Sprintf("%s=%s", c, f.Canonical))
		}
	}

	return intent.Decision{
		Intent:     intent.ProductInquiry,
		Confidence: 0.75,
		Tier:       intent.TierRule,
		FunctionCall: &intent.FunctionCall{
			Name:      "getProductInfo",
			QueryType: queryType(feats.QueryKindValue()),
		},
		Reason: "product: features " + strings.Join(named, " "),
	}, true
}

// queryType maps an extracted query kind onto the function-call enum.
// Search and unknown kinds read as detail requests.
func queryType(kind string) intent.QueryType {
	switch kind {
	case feature.KindPrice:
		return intent.QueryPrice
	case feature.KindStock:
		return intent.QueryStock
	case feature.KindColor:
		return intent.QueryColor
	case feature.KindSize:
		return intent.QuerySize
	default:
		return intent.QueryDetail
	}
}

// matchPhrase matches pattern against the utterance as a whole or as a
// contiguous word sequence. Whole-utterance hits score 1.0, word hits 0.9.
func matchPhrase(u textnorm.Utterance, pattern string) (float64, bool) {
	stripped := strings.Trim(u.Text, " .,!?'-")
	if stripped == pattern {
		return 1.0, true
	}

	words := strings.Fields(pattern)
	if len(words) == 0 {
		return 0, false
	}
	tokens := make([]string, len(u.Tokens))
	for i, t := range u.Tokens {
		tokens[i] = strings.Trim(t.Text, ".,!?'-")
	}
	for i := 0; i+len(words) <= len(tokens); i++ {
		matched := true
		for j, w := range words {
			if tokens[i+j] != w {
				matched = false
				break
			}
		}
		if matched {
			return 0.9, true
		}
	}
	return 0, false
}

// Satisfied reports whether the normalized text carries a satisfaction token.
// The pipeline uses it to maintain SessionView.RecentSatisfied.
func Satisfied(u textnorm.Utterance) bool {
	for _, tok := range satisfactionTokens {
		if _, ok := matchPhrase(u, tok); ok {
			return true
		}
	}
	return false
}
