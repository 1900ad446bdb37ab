package feature

import "regexp"

// patternEntry is one row of the declarative extraction table. Canonical is
// matched at confidence 1.0, Synonyms at 0.9; substring-partial hits score
// 0.7. Entries with more words take precedence over constituent single-word
// entries in the same category.
type patternEntry struct {
	Category  Category
	Canonical string
	Synonyms  []string
	// Regex, when set, replaces word matching entirely. Group 1 is the value.
	Regex *regexp.Regexp
}

// table drives extraction. Order matters twice over: multi-word entries are
// evaluated before their single-word constituents, and output order follows
// first match position then table order.
var table = []patternEntry{
	// --- target group (multi-word first) ---
	{Category: TargetGroup, Canonical: "hamile lohusa", Synonyms: []string{"lohusa hamile"}},
	{Category: TargetGroup, Canonical: "hamile", Synonyms: []string{"gebe"}},
	{Category: TargetGroup, Canonical: "lohusa"},
	{Category: TargetGroup, Canonical: "büyük beden", Synonyms: []string{"battal", "battal boy"}},
	{Category: TargetGroup, Canonical: "erkek", Synonyms: []string{"bay"}},
	{Category: TargetGroup, Canonical: "kadın", Synonyms: []string{"bayan"}},
	{Category: TargetGroup, Canonical: "çocuk", Synonyms: []string{"kız çocuk", "erkek çocuk"}},

	// --- garment type ---
	{Category: GarmentType, Canonical: "pijama takım", Synonyms: []string{"pijama takımı", "takım pijama"}},
	{Category: GarmentType, Canonical: "gecelik"},
	{Category: GarmentType, Canonical: "pijama", Synonyms: []string{"pajama"}},
	{Category: GarmentType, Canonical: "sabahlık"},
	{Category: GarmentType, Canonical: "takım"},
	{Category: GarmentType, Canonical: "elbise"},
	{Category: GarmentType, Canonical: "şort"},
	{Category: GarmentType, Canonical: "tulum"},
	{Category: GarmentType, Canonical: "kimono"},

	// --- style ---
	{Category: Style, Canonical: "dantelli", Synonyms: []string{"dantel", "güpürlü", "güpür"}},
	{Category: Style, Canonical: "dekolteli", Synonyms: []string{"dekolte"}},
	{Category: Style, Canonical: "etnik", Synonyms: []string{"afrika", "etnik desen"}},
	{Category: Style, Canonical: "askılı", Synonyms: []string{"ip askılı"}},
	{Category: Style, Canonical: "uzun", Synonyms: []string{"maxi"}},
	{Category: Style, Canonical: "kısa", Synonyms: []string{"mini"}},

	// --- color ---
	{Category: Color, Canonical: "siyah", Synonyms: []string{"black"}},
	{Category: Color, Canonical: "beyaz", Synonyms: []string{"white", "ekru", "krem"}},
	{Category: Color, Canonical: "kırmızı", Synonyms: []string{"red", "kirmizi"}},
	{Category: Color, Canonical: "lacivert", Synonyms: []string{"navy"}},
	{Category: Color, Canonical: "mavi", Synonyms: []string{"blue"}},
	{Category: Color, Canonical: "yeşil", Synonyms: []string{"green", "yesil", "haki"}},
	{Category: Color, Canonical: "sarı", Synonyms: []string{"yellow", "sari"}},
	{Category: Color, Canonical: "mor", Synonyms: []string{"purple", "lila"}},
	{Category: Color, Canonical: "pembe", Synonyms: []string{"pink", "pudra"}},
	{Category: Color, Canonical: "vizon", Synonyms: []string{"bej", "beige"}},
	{Category: Color, Canonical: "bordo", Synonyms: []string{"burgundy"}},
	{Category: Color, Canonical: "gri", Synonyms: []string{"gray", "grey", "antrasit"}},
	{Category: Color, Canonical: "kahverengi", Synonyms: []string{"kahve", "brown"}},
	{Category: Color, Canonical: "turuncu", Synonyms: []string{"orange"}},

	// --- material ---
	{Category: Material, Canonical: "pamuklu", Synonyms: []string{"pamuk", "cotton"}},
	{Category: Material, Canonical: "saten", Synonyms: []string{"satin"}},
	{Category: Material, Canonical: "ipek", Synonyms: []string{"silk"}},
	{Category: Material, Canonical: "viskon", Synonyms: []string{"viscose"}},
	{Category: Material, Canonical: "penye"},
	{Category: Material, Canonical: "tül"},

	// --- pattern ---
	{Category: Pattern, Canonical: "çiçekli", Synonyms: []string{"çiçek desenli"}},
	{Category: Pattern, Canonical: "puantiyeli", Synonyms: []string{"puantiye"}},
	{Category: Pattern, Canonical: "çizgili"},
	{Category: Pattern, Canonical: "leopar", Synonyms: []string{"leopar desenli"}},
	{Category: Pattern, Canonical: "baskılı", Synonyms: []string{"desenli"}},

	// --- closure / neckline / sleeve ---
	{Category: Closure, Canonical: "düğmeli"},
	{Category: Closure, Canonical: "fermuarlı", Synonyms: []string{"fermuar"}},
	{Category: Closure, Canonical: "bağlamalı", Synonyms: []string{"kuşaklı"}},
	{Category: Neckline, Canonical: "v yaka", Synonyms: []string{"v-yaka"}},
	{Category: Neckline, Canonical: "bisiklet yaka"},
	{Category: Sleeve, Canonical: "uzun kollu"},
	{Category: Sleeve, Canonical: "kısa kollu"},
	{Category: Sleeve, Canonical: "kolsuz"},

	// --- occasion ---
	{Category: Occasion, Canonical: "çeyiz", Synonyms: []string{"çeyizlik"}},
	{Category: Occasion, Canonical: "balayı", Synonyms: []string{"düğün"}},
	{Category: Occasion, Canonical: "günlük", Synonyms: []string{"ev giyim"}},

	// --- size ---
	{Category: Size, Canonical: "xs", Synonyms: []string{"extra small"}},
	{Category: Size, Canonical: "xl", Synonyms: []string{"extra large"}},
	{Category: Size, Canonical: "xxl", Synonyms: []string{"2xl"}},
	{Category: Size, Canonical: "xxxl", Synonyms: []string{"3xl"}},
	{Category: Size, Canonical: "standart", Synonyms: []string{"tek beden"}},
	// "42 beden", "42 si", "38 numara"
	{Category: Size, Regex: regexp.MustCompile(`(?:^|\s)(\d{2})(?:\s*beden|\s*numara|\s+s[ıi])(?:\s|$|[.!?])`)},
	// bare letter sizes only with an explicit beden context: "m beden"
	{Category: Size, Regex: regexp.MustCompile(`(?:^|\s)([sml])\s+beden`)},

	// --- query kind (multi-word first) ---
	{Category: QueryKind, Canonical: KindPrice, Synonyms: []string{
		"ne kadar", "kaç para", "kaç tl", "kaç lira", "fiyat", "fiyatı", "kaça", "ücret"}},
	{Category: QueryKind, Canonical: KindStock, Synonyms: []string{
		"var mı", "stok", "stokta", "mevcut", "mevcut mu", "kaldı mı", "bulunur mu"}},
	{Category: QueryKind, Canonical: KindColor, Synonyms: []string{
		"hangi renkler", "renkleri", "renk seçenekleri", "başka renk"}},
	{Category: QueryKind, Canonical: KindSize, Synonyms: []string{
		"hangi bedenler", "bedenleri", "beden var", "beden seçenekleri"}},
	{Category: QueryKind, Canonical: KindDetail, Synonyms: []string{
		"özellikleri", "detay", "detayları", "kumaşı nasıl", "nasıl bir ürün"}},
	{Category: QueryKind, Canonical: KindSearch, Synonyms: []string{
		"arıyorum", "bakıyorum", "istiyorum", "lazım", "öner", "önerir misin", "gerek"}},
}

// GarmentLemmas lists the garment-type canonical values. The rule router's
// social and business layers consult this to avoid firing on product talk.
func GarmentLemmas() []string {
	var out []string
	for _, e := range table {
		if e.Category == GarmentType && e.Canonical != "" {
			out = append(out, e.Canonical)
		}
	}
	return out
}

// Vocabulary returns every word the pattern table knows, used by the
// nonsense guard to decide whether an utterance is entirely out of
// dictionary.
func Vocabulary() map[string]bool {
	vocab := make(map[string]bool)
	add := func(phrase string) {
		for _, w := range splitWords(phrase) {
			vocab[w] = true
		}
	}
	for _, e := range table {
		if e.Canonical != "" {
			add(e.Canonical)
		}
		for _, s := range e.Synonyms {
			add(s)
		}
	}
	return vocab
}
