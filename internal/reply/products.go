package reply

import (
	"fmt"
	"strings"

	"github.com/tansu/yanit/internal/catalog"
)

// colorIndicators are the color words stripped from product names when
// deciding whether two rows are the same model in different colors.
var colorIndicators = []string{
	"Siyah", "Beyaz", "Kırmızı", "Mavi", "Yeşil", "Sarı",
	"Mor", "Pembe", "Lacivert", "Bordo", "Vizon", "Ekru",
	"SİYAH", "BEYAZ", "KIRMIZI", "MAVİ", "YEŞİL", "SARI",
	"MOR", "PEMBE", "LACİVERT", "BORDO", "VİZON", "EKRU",
}

// baseName strips color words so "Dantelli Gecelik Siyah" and
// "Dantelli Gecelik Beyaz" group under one model.
func baseName(name string) string {
	for _, color := range colorIndicators {
		name = strings.ReplaceAll(name, color, "")
	}
	return strings.Join(strings.Fields(name), " ")
}

type colorVariant struct {
	product catalog.Product
}

type productGroup struct {
	name     string
	variants []colorVariant
}

// groupByModel buckets products by base name, keeping first-seen order.
func groupByModel(products []catalog.Product) []productGroup {
	var groups []productGroup
	index := make(map[string]int)
	for _, p := range products {
		key := baseName(p.Name)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, productGroup{name: key})
		}
		groups[i].variants = append(groups[i].variants, colorVariant{product: p})
	}
	return groups
}

// Products formats a ranked product list, grouping color variants of the
// same model and surfacing discounts.
func (c *Composer) Products(products []catalog.Product) string {
	if len(products) == 0 {
		return c.NoProductsFound()
	}

	var b strings.Builder
	b.WriteString("İşte bulduğum ürünler: 🛍️\n\n")

	for i, g := range groupByModel(products) {
		if len(g.variants) > 1 {
			c.writeGroup(&b, i+1, g)
		} else {
			c.writeSingle(&b, i+1, g.variants[0].product)
		}
	}

	b.WriteString(fmt.Sprintf("📞 Sipariş ve detaylı bilgi: %s", c.facts.Phone))
	return b.String()
}

func (c *Composer) writeGroup(b *strings.Builder, n int, g productGroup) {
	b.WriteString(fmt.Sprintf("%d. %s\n", n, g.name))

	min, max := g.variants[0].product.FinalPrice, g.variants[0].product.FinalPrice
	for _, v := range g.variants[1:] {
		if v.product.FinalPrice < min {
			min = v.product.FinalPrice
		}
		if v.product.FinalPrice > max {
			max = v.product.FinalPrice
		}
	}
	if min == max {
		b.WriteString(fmt.Sprintf("   💰 Fiyat: %.2f TL\n", min))
	} else {
		b.WriteString(fmt.Sprintf("   💰 Fiyat: %.2f - %.2f TL\n", min, max))
	}

	colors := make([]string, len(g.variants))
	for i, v := range g.variants {
		mark := "✅"
		if !v.product.InStock() {
			mark = "❌"
		}
		colors[i] = fmt.Sprintf("%s %s", v.product.Color, mark)
	}
	b.WriteString(fmt.Sprintf("   🎨 Renkler: %s\n\n", strings.Join(colors, ", ")))
}

func (c *Composer) writeSingle(b *strings.Builder, n int, p catalog.Product) {
	b.WriteString(fmt.Sprintf("%d. %s\n", n, p.Name))
	b.WriteString(fmt.Sprintf("   🎨 Renk: %s - 💰 %.2f TL", p.Color, p.FinalPrice))

	if d := p.Discount(); d > 0 {
		b.WriteString(fmt.Sprintf(" 🏷️ (%%%.0f indirim, %.2f TL tasarruf)", d, p.Price-p.FinalPrice))
	}

	if p.InStock() {
		b.WriteString(" - 📦 ✅ Mevcut\n\n")
	} else {
		b.WriteString(" - 📦 ❌ Tükendi\n\n")
	}
}

// StockAnswer answers a stock question about one product.
func (c *Composer) StockAnswer(p catalog.Product) string {
	if p.InStock() {
		return fmt.Sprintf("✅ %s (%s) stokta mevcut! %d adet kaldı.\n\n📞 Sipariş için: %s",
			p.Name, p.Color, p.Stock, c.facts.Phone)
	}
	return fmt.Sprintf("❌ %s (%s) maalesef tükendi.\n\n"+
		"💡 Benzer ürünlerimize göz atmak ister misiniz?%s",
		p.Name, p.Color, c.WhatsAppHandoff())
}

// PriceAnswer answers a price question about one product.
func (c *Composer) PriceAnswer(p catalog.Product) string {
	if d := p.Discount(); d > 0 {
		return fmt.Sprintf("💰 %s (%s): %.2f TL 🏷️ (%%%.0f indirim, normal fiyatı %.2f TL)\n\n📞 Sipariş için: %s",
			p.Name, p.Color, p.FinalPrice, d, p.Price, c.facts.Phone)
	}
	return fmt.Sprintf("💰 %s (%s): %.2f TL\n\n📞 Sipariş için: %s",
		p.Name, p.Color, p.FinalPrice, c.facts.Phone)
}
