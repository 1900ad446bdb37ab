package feature

import (
	"sort"
	"strings"
)

// Extract runs the pattern table against normalized text and returns the
// de-duplicated, ordered feature set.
//
// Rules:
//   - variants equal to the canonical value hit at 1.0, synonyms at 0.9,
//     substring-partial hits at 0.7;
//   - multi-word matches claim their token span per category, suppressing
//     single-word matches fully inside a claimed span;
//   - duplicates by (category, canonical) keep the highest confidence;
//   - output is ordered by first match position, then table order.
func Extract(text string) Set {
	tokens := splitWords(text)
	if len(tokens) == 0 {
		return nil
	}

	type hit struct {
		feat     Feature
		pos      int // token index of first matched token
		span     int // tokens covered
		tableIdx int
	}
	var hits []hit

	claimed := make(map[Category][]bool) // category -> claimed token mask
	claim := func(c Category, pos, span int) {
		mask, ok := claimed[c]
		if !ok {
			mask = make([]bool, len(tokens))
			claimed[c] = mask
		}
		for i := pos; i < pos+span && i < len(mask); i++ {
			mask[i] = true
		}
	}
	isClaimed := func(c Category, pos, span int) bool {
		mask, ok := claimed[c]
		if !ok {
			return false
		}
		for i := pos; i < pos+span && i < len(mask); i++ {
			if !mask[i] {
				return false
			}
		}
		return true
	}

	for idx, entry := range table {
		if entry.Regex != nil {
			m := entry.Regex.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			value := m[1]
			pos := tokenIndexOf(tokens, value)
			hits = append(hits, hit{
				feat: Feature{
					Category:   entry.Category,
					Value:      value,
					Canonical:  value,
					Weight:     Weight(entry.Category),
					Confidence: confExact,
				},
				pos: pos, span: 1, tableIdx: idx,
			})
			claim(entry.Category, pos, 1)
			continue
		}

		pos, span, conf, value := matchEntry(tokens, entry)
		if pos < 0 {
			continue
		}
		if isClaimed(entry.Category, pos, span) {
			continue
		}
		hits = append(hits, hit{
			feat: Feature{
				Category:   entry.Category,
				Value:      value,
				Canonical:  entry.Canonical,
				Weight:     Weight(entry.Category),
				Confidence: conf,
				Synonyms:   entry.Synonyms,
			},
			pos: pos, span: span, tableIdx: idx,
		})
		claim(entry.Category, pos, span)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].tableIdx < hits[j].tableIdx
	})

	// De-duplicate by (category, canonical), keeping the best confidence.
	type key struct {
		c Category
		v string
	}
	best := make(map[key]int)
	var out Set
	for _, h := range hits {
		k := key{h.feat.Category, h.feat.Canonical}
		if i, ok := best[k]; ok {
			if h.feat.Confidence > out[i].Confidence {
				out[i].Confidence = h.feat.Confidence
				out[i].Value = h.feat.Value
			}
			continue
		}
		best[k] = len(out)
		out = append(out, h.feat)
	}
	return out
}

// matchEntry finds the earliest match of an entry's variants in the token
// stream. Returns pos -1 when nothing matched.
func matchEntry(tokens []string, e patternEntry) (pos, span int, conf float64, value string) {
	pos = -1
	try := func(variant string, c float64) {
		words := splitWords(variant)
		p := findPhrase(tokens, words)
		if p >= 0 && (pos < 0 || p < pos || (p == pos && c > conf)) {
			pos, span, conf, value = p, len(words), c, variant
		}
	}
	try(e.Canonical, confExact)
	for _, s := range e.Synonyms {
		try(s, confSynonym)
	}
	if pos >= 0 {
		return pos, span, conf, value
	}

	// Substring-partial: an unlemmatized token carrying the canonical value,
	// e.g. "siyahmış" contains "siyah". Single-word variants only.
	if !strings.Contains(e.Canonical, " ") && len([]rune(e.Canonical)) >= 4 {
		for i, tok := range tokens {
			if tok != e.Canonical && strings.Contains(tok, e.Canonical) {
				return i, 1, confPartial, tok
			}
		}
	}
	return -1, 0, 0, ""
}

// findPhrase returns the index where words appear consecutively in tokens.
func findPhrase(tokens, words []string) int {
	if len(words) == 0 || len(words) > len(tokens) {
		return -1
	}
outer:
	for i := 0; i+len(words) <= len(tokens); i++ {
		for j, w := range words {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

func tokenIndexOf(tokens []string, value string) int {
	for i, t := range tokens {
		if t == value {
			return i
		}
	}
	return 0
}

func splitWords(s string) []string {
	return strings.Fields(strings.TrimSpace(s))
}
