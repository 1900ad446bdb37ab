package textnorm

import "testing"

func TestNormalizeFoldsTurkishCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"MERHABA", "merhaba"},
		{"İade Var MI", "iade var mı"},
		{"IŞIK", "ışık"},
		{"Gecelik", "gecelik"},
	}
	for _, c := range cases {
		if got := Normalize(c.in).Text; got != c.want {
			t.Errorf("Normalize(%q).Text = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeStripsForeignDiacritics(t *testing.T) {
	got := Normalize("café â la mode").Text
	want := "cafe a la mode"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizePreservesTurkishLetters(t *testing.T) {
	got := Normalize("çiçekli şort ve gecelik").Text
	want := "çiçekli şort ve gecelik"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeDropsDisallowedCharacters(t *testing.T) {
	got := Normalize("fiyatı *** @nedir# ~!").Text
	want := "fiyat nedir !"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := Normalize("  siyah \t\n gecelik  ").Text
	if got != "siyah gecelik" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Afrika Etnik Dantelli GECELİĞİ fiyatı?!",
		"pijamayı iade edebilir miyim",
		"café-crème 42 beden",
		"   ",
		"&&& ###",
		"hamile lohusa takımı var mı",
	}
	for _, in := range inputs {
		once := Normalize(in).Text
		twice := Normalize(once).Text
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestLemmaSuffixStripping(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"geceliği", "gecelik"},
		{"geceliğin", "gecelik"},
		{"gecelikler", "gecelik"},
		{"pijamayı", "pijama"},
		{"takımı", "takım"},
		{"sabahlığı", "sabahlık"},
		{"fiyatı", "fiyat"},
		{"gecelik", "gecelik"},
		// never strip into a non-vocabulary stem
		{"merhaba", "merhaba"},
		{"kapı", "kapı"},
	}
	for _, c := range cases {
		if got := Lemma(c.in); got != c.want {
			t.Errorf("Lemma(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClassSummary(t *testing.T) {
	u := Normalize("abc 123")
	if u.Length != 6 {
		t.Fatalf("Length = %d, want 6", u.Length)
	}
	if u.AlphaRatio != 0.5 || u.DigitRatio != 0.5 {
		t.Errorf("ratios = %v/%v, want 0.5/0.5", u.AlphaRatio, u.DigitRatio)
	}
}

func TestShortTokensFlagged(t *testing.T) {
	u := Normalize("m beden")
	if len(u.Tokens) != 2 {
		t.Fatalf("got %d tokens", len(u.Tokens))
	}
	if !u.Tokens[0].Short {
		t.Error("single-letter token not flagged short")
	}
	if u.Tokens[1].Short {
		t.Error("beden flagged short")
	}
}
