package feature

import (
	"reflect"
	"testing"

	"github.com/tansu/yanit/internal/textnorm"
)

func extract(t *testing.T, raw string) Set {
	t.Helper()
	return Extract(textnorm.Normalize(raw).Text)
}

func canonicals(s Set, c Category) []string {
	var out []string
	for _, f := range s.ByCategory(c) {
		out = append(out, f.Canonical)
	}
	return out
}

func TestExtractGarmentAndQueryKind(t *testing.T) {
	s := extract(t, "afrika gecelik fiyatı")

	if got := canonicals(s, GarmentType); !reflect.DeepEqual(got, []string{"gecelik"}) {
		t.Errorf("garment_type = %v", got)
	}
	if got := s.QueryKindValue(); got != KindPrice {
		t.Errorf("query_kind = %q, want %q", got, KindPrice)
	}
	if got := canonicals(s, Style); !reflect.DeepEqual(got, []string{"etnik"}) {
		t.Errorf("style = %v", got)
	}
}

func TestExtractColorSynonym(t *testing.T) {
	s := extract(t, "black gecelik var mı")
	f, ok := s.First(Color)
	if !ok {
		t.Fatal("no color feature")
	}
	if f.Canonical != "siyah" {
		t.Errorf("canonical = %q, want siyah", f.Canonical)
	}
	if f.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 for synonym hit", f.Confidence)
	}
}

func TestExtractExactColorConfidence(t *testing.T) {
	s := extract(t, "siyah pijama")
	f, _ := s.First(Color)
	if f.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for canonical hit", f.Confidence)
	}
}

func TestMultiWordSuppressesConstituents(t *testing.T) {
	s := extract(t, "hamile lohusa pijama takımı")
	got := canonicals(s, TargetGroup)
	if !reflect.DeepEqual(got, []string{"hamile lohusa"}) {
		t.Errorf("target_group = %v, want only the multi-word feature", got)
	}
}

func TestExtractNumericSize(t *testing.T) {
	s := extract(t, "geceliğin 42 si var mı")
	f, ok := s.First(Size)
	if !ok {
		t.Fatal("no size feature")
	}
	if f.Canonical != "42" {
		t.Errorf("size = %q, want 42", f.Canonical)
	}
	if !s.Has(GarmentType) {
		t.Error("garment_type lost next to size pattern")
	}
}

func TestExtractDeterministicOrdering(t *testing.T) {
	first := extract(t, "siyah dantelli hamile gecelik ne kadar")
	for range 20 {
		again := extract(t, "siyah dantelli hamile gecelik ne kadar")
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("extraction not deterministic:\n%v\n%v", first, again)
		}
	}
}

func TestExtractDeduplicates(t *testing.T) {
	s := extract(t, "siyah siyah gecelik")
	if got := canonicals(s, Color); len(got) != 1 {
		t.Errorf("colors = %v, want a single deduplicated entry", got)
	}
}

func TestExtractNothingFromSmallTalk(t *testing.T) {
	s := extract(t, "merhaba nasılsınız")
	if len(s) != 0 {
		t.Errorf("unexpected features: %v", s)
	}
}

func TestWeightDefaults(t *testing.T) {
	if Weight(GarmentType) != 2.0 {
		t.Errorf("garment weight = %v", Weight(GarmentType))
	}
	if Weight(Category("bogus")) != 1.0 {
		t.Errorf("fallback weight = %v", Weight(Category("bogus")))
	}
}
