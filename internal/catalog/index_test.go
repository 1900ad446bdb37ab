package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sliceSource []Product

func (s sliceSource) Load(ctx context.Context) ([]Product, error) { return s, nil }

func validProduct(id string) Product {
	return Product{
		ID: id, Name: "Afrika Etnik Dantelli Gecelik", Color: "SİYAH",
		Price: 628.27, FinalPrice: 565.44, Stock: 3, Category: "İç Giyim",
	}
}

func TestLoadDropsInvalidRecords(t *testing.T) {
	src := sliceSource{
		validProduct("A"),
		{ID: "B", Color: "SİYAH", Price: 10, FinalPrice: 10, Stock: 1, Category: "c"}, // no name
		{Name: "No ID", Color: "EKRU", Price: 10, FinalPrice: 10, Stock: 1, Category: "c"},
		validProduct("A"), // duplicate id
	}
	idx, err := Load(context.Background(), "boutique", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
	if _, ok := idx.ByID("A"); !ok {
		t.Error("product A missing")
	}
}

func TestRichTextDeterministic(t *testing.T) {
	p := validProduct("A")
	p.buildDerived()
	first := p.RichText

	q := validProduct("A")
	q.buildDerived()
	if q.RichText != first {
		t.Errorf("rich text differs across builds:\n%s\n%s", first, q.RichText)
	}
	if p.RichTextHash() != q.RichTextHash() {
		t.Error("hash differs for identical rich text")
	}
}

func TestRichTextContents(t *testing.T) {
	p := validProduct("A")
	p.buildDerived()
	for _, want := range []string{"afrika etnik dantelli gecelik", "siyah", "ekonomik"} {
		if !strings.Contains(p.RichText, want) {
			t.Errorf("rich text %q missing %q", p.RichText, want)
		}
	}
}

func TestPriceBuckets(t *testing.T) {
	cases := map[float64]string{
		565.44: "ekonomik",
		1000:   "orta segment",
		1999:   "orta segment",
		2500:   "premium",
	}
	for price, want := range cases {
		if got := PriceBucket(price); got != want {
			t.Errorf("PriceBucket(%v) = %q, want %q", price, got, want)
		}
	}
}

func TestVersionBumps(t *testing.T) {
	idx, err := Load(context.Background(), "boutique", sliceSource{validProduct("A")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Version() != 1 {
		t.Fatalf("initial version = %d", idx.Version())
	}
	if v := idx.BumpVersion(); v != 2 {
		t.Fatalf("bumped version = %d", v)
	}
}

type fixedEmbedder struct{ calls int }

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{1, 0, 0}, nil
}

type mapCache map[string][]float32

func (c mapCache) GetEmbedding(hash string) ([]float32, bool, error) {
	v, ok := c[hash]
	return v, ok, nil
}
func (c mapCache) PutEmbedding(hash string, vec []float32) error {
	c[hash] = vec
	return nil
}

func TestAttachEmbeddingsUsesCache(t *testing.T) {
	idx, err := Load(context.Background(), "boutique", sliceSource{validProduct("A"), validProduct("B")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	emb := &fixedEmbedder{}
	cache := mapCache{}
	if err := idx.AttachEmbeddings(context.Background(), emb, cache); err != nil {
		t.Fatalf("AttachEmbeddings: %v", err)
	}
	if !idx.HasEmbeddings() {
		t.Fatal("embeddings missing after attach")
	}
	firstCalls := emb.calls

	// A second index over the same products must restore from cache.
	idx2, _ := Load(context.Background(), "boutique", sliceSource{validProduct("A"), validProduct("B")})
	if err := idx2.AttachEmbeddings(context.Background(), emb, cache); err != nil {
		t.Fatalf("AttachEmbeddings: %v", err)
	}
	if emb.calls != firstCalls {
		t.Errorf("embedder called %d more times despite cache", emb.calls-firstCalls)
	}
}

type pruningCache struct {
	mapCache
	pruned []string
}

func (c *pruningCache) PruneEmbeddings(keep []string) (int64, error) {
	live := make(map[string]bool, len(keep))
	for _, h := range keep {
		live[h] = true
	}
	var n int64
	for h := range c.mapCache {
		if !live[h] {
			delete(c.mapCache, h)
			c.pruned = append(c.pruned, h)
			n++
		}
	}
	return n, nil
}

func TestAttachEmbeddingsPrunesDelistedProducts(t *testing.T) {
	cache := &pruningCache{mapCache: mapCache{}}

	delisted := validProduct("B")
	delisted.Name = "Saten Sabahlık Takımı"

	full, err := Load(context.Background(), "boutique", sliceSource{validProduct("A"), delisted})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := full.AttachEmbeddings(context.Background(), &fixedEmbedder{}, cache); err != nil {
		t.Fatalf("AttachEmbeddings: %v", err)
	}
	if len(cache.mapCache) != 2 {
		t.Fatalf("cached vectors = %d, want 2", len(cache.mapCache))
	}

	// Reload without product B: its vector must be evicted, A's kept.
	trimmed, _ := Load(context.Background(), "boutique", sliceSource{validProduct("A")})
	if err := trimmed.AttachEmbeddings(context.Background(), &fixedEmbedder{}, cache); err != nil {
		t.Fatalf("AttachEmbeddings: %v", err)
	}
	if len(cache.pruned) != 1 {
		t.Fatalf("pruned %d vectors, want 1", len(cache.pruned))
	}
	keepHash := trimmed.products[0].RichTextHash()
	if _, ok := cache.mapCache[keepHash]; !ok {
		t.Error("live product's vector was pruned")
	}
}

func TestFileSourceJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	data := `[{"id":"A","name":"Dantelli Gecelik","color":"EKRU","price":150,"final_price":120,"stock":5,"category":"İç Giyim","unknown_field":true}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	products, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 1 || products[0].ID != "A" || products[0].FinalPrice != 120 {
		t.Errorf("unexpected products: %+v", products)
	}
}

func TestFileSourceCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.csv")
	data := "id,name,color,category,price,final_price,stock\nA,Dantelli Gecelik,EKRU,İç Giyim,150,120,5\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	products, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 1 || products[0].Stock != 5 {
		t.Errorf("unexpected products: %+v", products)
	}
}

