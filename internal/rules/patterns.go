package rules

import "github.com/tansu/yanit/internal/intent"

// Social pattern tables. All entries are pre-normalized (lowercase, folded).
// Matching is whole-utterance or whole-word only, never substring.
//
// "iyi günler" is deliberately absent here: it greets at the start of a
// conversation and closes it near the end, so it gets its own session-aware
// check in the router.

var greetingPatterns = []string{
	"merhaba", "merhabalar", "selam", "selamlar", "selamün aleyküm",
	"günaydın", "iyi akşamlar", "hello", "hi", "hey",
	"kolay gelsin", "hayırlı işler",
}

var thanksPatterns = []string{
	"teşekkür", "teşekkürler", "teşekkür ederim", "çok teşekkürler",
	"teşekkür ederiz", "sağol", "sağolun", "sağ ol", "sağ olun",
	"eyvallah", "allah razı olsun",
}

var farewellPatterns = []string{
	"görüşürüz", "görüşmek üzere", "hoşça kal", "hoşçakal", "hoşça kalın",
	"güle güle", "bay bay", "iyi geceler", "kendine iyi bak",
}

var complimentPatterns = []string{
	"harika", "harikasınız", "süper", "süpersiniz", "mükemmel",
	"çok güzel", "bayıldım", "çok iyisiniz", "ellerinize sağlık",
}

var complaintPatterns = []string{
	"şikayet", "şikayetim var", "şikayetçiyim", "memnun kalmadım",
	"memnun değilim", "berbat", "rezalet", "yanlış ürün geldi",
	"kusurlu", "defolu",
}

var humanTransferPatterns = []string{
	"yetkili", "yetkiliye", "müşteri temsilcisi", "temsilci", "temsilciye",
	"canlı destek", "operatör", "gerçek biri", "insan ile", "biriyle görüşmek",
}

// ambiguousDayGreeting greets on turn zero and can close a satisfied
// conversation later on.
const ambiguousDayGreeting = "iyi günler"

// satisfactionTokens mark a conversation as wrapped up. Their presence in
// recent turns tips "iyi günler" toward farewell.
var satisfactionTokens = []string{
	"teşekkür", "teşekkürler", "sağol", "sağolun", "tamam", "tamamdır",
	"oldu", "anladım", "süper", "harika",
}

// businessPattern maps keywords to a getGeneralInfo info type. Excluded
// categories veto the match so product talk falls through to retrieval.
type businessPattern struct {
	InfoType intent.InfoType
	Words    []string
	// excludeOnGarment vetoes the keyword when a garment-type feature was
	// extracted ("gecelik iade" is a product question, not a policy one).
	excludeOnGarment bool
}

var businessPatterns = []businessPattern{
	{InfoType: intent.InfoPhone, Words: []string{
		"telefon", "telefonunuz", "numaranız", "whatsapp", "arayabilir", "iletişim"}},
	{InfoType: intent.InfoReturnPolicy, Words: []string{
		"iade", "iadesi", "değişim", "değiştirebilir", "geri gönderebilir"},
		excludeOnGarment: true},
	{InfoType: intent.InfoShipping, Words: []string{
		"kargo", "kargoya", "teslimat", "gönderim", "kaç günde gelir"}},
	{InfoType: intent.InfoWebsite, Words: []string{
		"site", "siteniz", "web", "instagram", "online"}},
}
