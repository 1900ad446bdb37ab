package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/tansu/yanit/internal/intent"
)

// systemPreamble pins the model to the closed function set. The model either
// answers with one function call or with a short Turkish reply.
const systemPreamble = `Sen bir butik iç giyim mağazasının müşteri asistanısın. ` +
	`Müşterinin mesajını analiz et ve uygun fonksiyonu çağır. ` +
	`Ürün sorusu için getProductInfo, mağaza bilgisi için getGeneralInfo kullan. ` +
	`Fonksiyon uymuyorsa kısa ve nazik bir Türkçe cevap yaz.`

// tool is one entry of the chat request's tools array.
type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// functionTools declares the two callable functions with their argument
// enums. Anything outside these schemas is a validation failure.
var functionTools = []tool{
	{
		Type: "function",
		Function: toolFunction{
			Name:        "getProductInfo",
			Description: "Bir ürün hakkında fiyat, stok, renk, beden veya detay bilgisi getirir.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"product_name": {"type": "string", "description": "Ürün adı"},
					"query_type": {"type": "string", "enum": ["price", "stock", "detail", "color", "size"]}
				},
				"required": ["product_name", "query_type"]
			}`),
		},
	},
	{
		Type: "function",
		Function: toolFunction{
			Name:        "getGeneralInfo",
			Description: "Mağaza hakkında telefon, iade, kargo veya web sitesi bilgisi getirir.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"info_type": {"type": "string", "enum": ["phone", "return_policy", "shipping", "website"]}
				},
				"required": ["info_type"]
			}`),
		},
	},
}

// functionArgs mirrors the union of both functions' argument objects.
type functionArgs struct {
	ProductName string `json:"product_name"`
	QueryType   string `json:"query_type"`
	InfoType    string `json:"info_type"`
}

// parseFunctionCall validates a model tool call against the declared schemas
// and converts it to the typed form. Any deviation is a *ValidationError.
func parseFunctionCall(name string, rawArgs string) (*intent.FunctionCall, error) {
	var args functionArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unparseable arguments for %s: %v", name, err)}
	}

	switch name {
	case "getProductInfo":
		if args.ProductName == "" {
			return nil, &ValidationError{Reason: "getProductInfo missing product_name"}
		}
		qt := intent.QueryType(args.QueryType)
		switch qt {
		case intent.QueryPrice, intent.QueryStock, intent.QueryDetail, intent.QueryColor, intent.QuerySize:
		default:
			return nil, &ValidationError{Reason: fmt.Sprintf("getProductInfo query_type %q outside enum", args.QueryType)}
		}
		return &intent.FunctionCall{Name: name, ProductName: args.ProductName, QueryType: qt}, nil

	case "getGeneralInfo":
		it := intent.InfoType(args.InfoType)
		switch it {
		case intent.InfoPhone, intent.InfoReturnPolicy, intent.InfoShipping, intent.InfoWebsite:
		default:
			return nil, &ValidationError{Reason: fmt.Sprintf("getGeneralInfo info_type %q outside enum", args.InfoType)}
		}
		return &intent.FunctionCall{Name: name, InfoType: it}, nil

	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("function %q not in schema", name)}
	}
}
