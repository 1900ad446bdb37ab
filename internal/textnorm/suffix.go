package textnorm

import "sort"

// lemmas is the domain vocabulary suffix stripping is allowed to land on.
// Stripping never produces a token outside this set, which is what makes
// lemmatization idempotent: a lemma never strips into another lemma.
var lemmas = map[string]bool{
	// garment types
	"gecelik": true, "pijama": true, "sabahlık": true, "takım": true,
	"elbise": true, "şort": true, "tulum": true, "kimono": true,
	// frequently inflected domain words
	"dantel": true, "hamile": true, "lohusa": true, "beden": true,
	"renk": true, "fiyat": true, "stok": true, "iade": true,
	"kargo": true, "sipariş": true, "ürün": true, "model": true,
}

// suffixes are the nominal endings stripped at token boundaries, longest
// match first. The table covers accusative, possessive, genitive, dative and
// plural forms seen in the traffic (geceliği, pijamayı, takımın, ...).
var suffixes = []string{
	"lerinizi", "larınızı",
	"leriniz", "larınız",
	"lerini", "larını",
	"lerin", "ların",
	"leri", "ları",
	"ler", "lar",
	"nın", "nin", "nun", "nün",
	"ın", "in", "un", "ün",
	"yı", "yi", "yu", "yü",
	"sı", "si", "su", "sü",
	"ya", "ye",
	"da", "de", "ta", "te",
	"dan", "den", "tan", "ten",
	"ı", "i", "u", "ü",
	"a", "e",
}

func init() {
	// Longest match wins.
	sort.Slice(suffixes, func(i, j int) bool {
		return len(suffixes[i]) > len(suffixes[j])
	})
}

// harden reverses Turkish final-consonant softening after a suffix is
// removed: geceliğ -> gecelik.
var harden = map[rune]rune{'ğ': 'k', 'b': 'p', 'c': 'ç', 'd': 't'}

// Lemma strips one inflectional suffix from token if the resulting stem is
// in the domain vocabulary, otherwise returns token unchanged.
func Lemma(token string) string {
	if lemmas[token] {
		return token
	}
	runes := []rune(token)
	for _, suf := range suffixes {
		sufRunes := []rune(suf)
		if len(runes)-len(sufRunes) < 3 {
			continue
		}
		if string(runes[len(runes)-len(sufRunes):]) != suf {
			continue
		}
		stem := runes[:len(runes)-len(sufRunes)]
		if lemmas[string(stem)] {
			return string(stem)
		}
		if h, ok := harden[stem[len(stem)-1]]; ok {
			hardened := append(append([]rune{}, stem[:len(stem)-1]...), h)
			if lemmas[string(hardened)] {
				return string(hardened)
			}
		}
	}
	return token
}
