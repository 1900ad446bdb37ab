// Package textnorm folds raw user text into the canonical form consumed by
// every other stage: Turkish-aware lowercasing, diacritic folding, suffix
// lemmatization, and a character-class summary for the nonsense guard.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Utterance is normalized text plus the summary the rule router needs.
type Utterance struct {
	Raw        string
	Text       string
	Tokens     []Token
	AlphaRatio float64
	DigitRatio float64
	Length     int
}

// Token is a single whitespace-delimited unit of the folded text. Tokens
// shorter than two characters are kept but flagged.
type Token struct {
	Text  string
	Short bool
}

// preserved are the Turkish letters whose diacritics change the lemma and
// therefore survive folding.
var preserved = map[rune]bool{
	'ç': true, 'ğ': true, 'ı': true, 'ö': true, 'ş': true, 'ü': true,
}

// Normalize folds raw into its canonical form. It is idempotent:
// Normalize(Normalize(x).Text).Text == Normalize(x).Text.
func Normalize(raw string) Utterance {
	folded := foldRunes(norm.NFC.String(raw))
	folded = collapseWhitespace(folded)

	fields := strings.Fields(folded)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		lemma := Lemma(f)
		tokens = append(tokens, Token{Text: lemma, Short: len([]rune(lemma)) < 2})
	}

	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	text := strings.Join(parts, " ")

	u := Utterance{Raw: raw, Text: text, Tokens: tokens}
	u.AlphaRatio, u.DigitRatio, u.Length = classSummary(text)
	return u
}

// foldRunes lowercases with Turkish dotted/dotless i semantics, folds
// diacritics not in the preserved set, and drops characters outside
// {letter, digit, space, . , ! ? ' -}.
func foldRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		for _, lr := range lowerTurkish(r) {
			fr, ok := foldRune(lr)
			if !ok {
				continue
			}
			b.WriteRune(fr)
		}
	}
	return b.String()
}

// lowerTurkish lowercases one rune under Turkish casing rules: I maps to
// dotless ı and İ maps to i.
func lowerTurkish(r rune) []rune {
	switch r {
	case 'I':
		return []rune{'ı'}
	case 'İ':
		return []rune{'i'}
	}
	return []rune{unicode.ToLower(r)}
}

// foldRune folds a single lowercased rune, reporting false when the rune is
// dropped entirely.
func foldRune(r rune) (rune, bool) {
	if preserved[r] {
		return r, true
	}
	switch {
	case unicode.IsLetter(r):
		return stripMark(r), true
	case unicode.IsDigit(r), unicode.IsSpace(r):
		return r, true
	}
	switch r {
	case '.', ',', '!', '?', '\'', '-':
		return r, true
	}
	return 0, false
}

// stripMark removes combining marks from a letter by NFD-decomposing it and
// keeping only the base rune. â becomes a, é becomes e; plain letters pass
// through unchanged.
func stripMark(r rune) rune {
	decomposed := norm.NFD.String(string(r))
	for _, d := range decomposed {
		if !unicode.Is(unicode.Mn, d) {
			return d
		}
	}
	return r
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classSummary computes the alpha and digit ratios over non-space runes.
func classSummary(s string) (alpha, digit float64, length int) {
	var alphaN, digitN, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case unicode.IsLetter(r):
			alphaN++
		case unicode.IsDigit(r):
			digitN++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}
	return float64(alphaN) / float64(total), float64(digitN) / float64(total), total
}
