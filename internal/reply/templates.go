// Package reply renders the fixed Turkish response templates and formats
// product listings. Every customer-visible string lives here.
package reply

import (
	"fmt"
	"strings"

	"github.com/tansu/yanit/internal/intent"
)

// BusinessFacts are the tenant's contact and policy details substituted into
// templates. Empty fields fall back to placeholder defaults.
type BusinessFacts struct {
	Phone        string `yaml:"phone"`
	Website      string `yaml:"website"`
	Email        string `yaml:"email"`
	ReturnPolicy string `yaml:"return_policy"`
	ShippingInfo string `yaml:"shipping_info"`
}

func (b BusinessFacts) withDefaults() BusinessFacts {
	if b.Phone == "" {
		b.Phone = "0212 123 45 67"
	}
	if b.Website == "" {
		b.Website = "www.butik.com"
	}
	if b.Email == "" {
		b.Email = "info@butik.com"
	}
	if b.ReturnPolicy == "" {
		b.ReturnPolicy = "14 gün içinde iade kabul edilir. Ürün kullanılmamış ve etiketli olmalıdır."
	}
	if b.ShippingInfo == "" {
		b.ShippingInfo = "Türkiye geneli ücretsiz kargo. 1-3 iş günü içinde teslimat."
	}
	return b
}

// Composer renders replies for one tenant.
type Composer struct {
	facts BusinessFacts
}

// NewComposer creates a Composer with the tenant's business facts.
func NewComposer(facts BusinessFacts) *Composer {
	return &Composer{facts: facts.withDefaults()}
}

func (c *Composer) Greeting() string {
	return "Merhaba! 👋 Size nasıl yardımcı olabilirim? Ürünlerimiz hakkında bilgi alabilir, fiyat sorabilirsiniz."
}

func (c *Composer) Thanks() string {
	return "Rica ederim! 😊 Başka sorunuz var mı?"
}

func (c *Composer) Farewell() string {
	return "Görüşmek üzere! İyi günler dilerim. 👋"
}

func (c *Composer) Compliment() string {
	return "Çok teşekkür ederiz! 😊 Başka bir konuda yardımcı olabilir miyim?"
}

// Clarification asks the user to rephrase an unreadable utterance.
func (c *Composer) Clarification() string {
	return "Üzgünüm, sorunuzu tam anlayamadım. 🤔 Lütfen başka bir şekilde ifade eder misiniz?"
}

// ClarifyWhichProduct prompts for a product name on a bare price/stock query.
func (c *Composer) ClarifyWhichProduct(qt intent.QueryType) string {
	switch qt {
	case intent.QueryStock:
		return fmt.Sprintf("📦 Hangi ürünün stok durumunu öğrenmek istiyorsunuz?\n\n"+
			"💡 Örnek: 'hamile pijama stok' veya ürün adını yazın.\n\n"+
			"📞 Detaylı bilgi: %s", c.facts.Phone)
	default:
		return fmt.Sprintf("💰 Hangi ürünün fiyatını öğrenmek istiyorsunuz?\n\n"+
			"💡 Lütfen ürün adını belirtin:\n"+
			"• 'Afrika gecelik fiyatı'\n"+
			"• 'Hamile pijama ne kadar'\n\n"+
			"📞 Yardım için: %s", c.facts.Phone)
	}
}

// BusinessInfo renders the template for a getGeneralInfo call.
func (c *Composer) BusinessInfo(it intent.InfoType) string {
	switch it {
	case intent.InfoPhone:
		return fmt.Sprintf("📞 Telefon numaramız: %s", c.facts.Phone)
	case intent.InfoReturnPolicy:
		return fmt.Sprintf("📋 İade politikamız: %s%s", c.facts.ReturnPolicy, c.WhatsAppHandoff())
	case intent.InfoShipping:
		return fmt.Sprintf("🚚 Kargo bilgileri: %s%s", c.facts.ShippingInfo, c.WhatsAppHandoff())
	case intent.InfoWebsite:
		return fmt.Sprintf("🌐 Web sitemiz: %s", c.facts.Website)
	default:
		return fmt.Sprintf("📞 Telefon: %s\n🌐 Web: %s\n📧 Email: %s",
			c.facts.Phone, c.facts.Website, c.facts.Email)
	}
}

// Complaint routes an unhappy customer to a human.
func (c *Composer) Complaint() string {
	return fmt.Sprintf("😔 Üzgünüz! Sorununuz için lütfen bizi arayın: %s\n\n"+
		"Müşteri hizmetlerimiz size yardımcı olacaktır.%s", c.facts.Phone, c.WhatsAppHandoff())
}

// HumanTransfer hands the conversation off to a person.
func (c *Composer) HumanTransfer() string {
	return fmt.Sprintf("🙋 Sizi müşteri temsilcimize yönlendiriyorum.\n\n"+
		"📞 Telefon: %s%s", c.facts.Phone, c.WhatsAppHandoff())
}

// NoProductsFound answers a product inquiry the retriever could not satisfy.
func (c *Composer) NoProductsFound() string {
	return fmt.Sprintf("Üzgünüm, aradığınız kriterlere uygun ürün bulamadım. 😔\n\n"+
		"💡 Öneriler:\n"+
		"• Ürünün tam adını yazın (örn: 'Afrika Etnik Baskılı Gecelik')\n"+
		"• Farklı renk deneyin\n"+
		"• Daha genel arama yapın\n\n"+
		"📞 Yardım için: %s%s", c.facts.Phone, c.WhatsAppHandoff())
}

// BudgetRefusal is the tier-5 answer when the governor refuses a request.
func (c *Composer) BudgetRefusal() string {
	return fmt.Sprintf("Şu anda yoğunluk yaşıyoruz. 🙏 Lütfen biraz sonra tekrar deneyin veya bizi arayın: %s",
		c.facts.Phone)
}

// WhatsAppHandoff renders the wa.me escape hatch appended to templates where
// a human follow-up helps.
func (c *Composer) WhatsAppHandoff() string {
	num := WhatsAppNumber(c.facts.Phone)
	if num == "" {
		return ""
	}
	return fmt.Sprintf("\n\n💬 Size yardımcı olamadıysam WhatsApp'tan ulaşabilirsiniz: wa.me/%s", num)
}

// WhatsAppNumber strips formatting from a Turkish phone number and prefixes
// the country code: "0212 123 45 67" becomes "902121234567".
func WhatsAppNumber(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "90") {
		return d
	}
	if strings.HasPrefix(d, "0") {
		return "90" + d[1:]
	}
	return "90" + d
}
