// Package intent defines the closed intent set and the resolution decision
// shared by the rule router, retriever, model gateway, and pipeline. None of
// those components import each other; they meet here.
package intent

import "fmt"

// Intent is the closed set of outcomes a request can resolve to. There is no
// "unknown": undecidable inputs must map to ClarificationNeeded or NeedsModel.
type Intent string

const (
	Greeting            Intent = "greeting"
	Thanks              Intent = "thanks"
	Farewell            Intent = "farewell"
	BusinessInfo        Intent = "business_info"
	ProductInquiry      Intent = "product_inquiry"
	ClarificationNeeded Intent = "clarification_needed"
	Complaint           Intent = "complaint"
	Compliment          Intent = "compliment"
	HumanTransfer       Intent = "human_transfer"
	NeedsModel          Intent = "needs_model"
)

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case Greeting, Thanks, Farewell, BusinessInfo, ProductInquiry,
		ClarificationNeeded, Complaint, Compliment, HumanTransfer, NeedsModel:
		return true
	}
	return false
}

// Tier names the pipeline stage that produced a reply.
type Tier string

const (
	TierCache     Tier = "cache"
	TierRule      Tier = "rule"
	TierRetrieval Tier = "retrieval"
	TierModel     Tier = "model"
	TierRefusal   Tier = "refusal"
)

// InfoType is the argument enum of the getGeneralInfo function call.
type InfoType string

const (
	InfoPhone        InfoType = "phone"
	InfoReturnPolicy InfoType = "return_policy"
	InfoShipping     InfoType = "shipping"
	InfoWebsite      InfoType = "website"
)

// QueryType is the argument enum of the getProductInfo function call.
type QueryType string

const (
	QueryPrice  QueryType = "price"
	QueryStock  QueryType = "stock"
	QueryDetail QueryType = "detail"
	QueryColor  QueryType = "color"
	QuerySize   QueryType = "size"
)

// FunctionCall is a validated call emitted by the rule router or the model.
type FunctionCall struct {
	Name        string    `json:"name"`
	ProductName string    `json:"product_name,omitempty"`
	QueryType   QueryType `json:"query_type,omitempty"`
	InfoType    InfoType  `json:"info_type,omitempty"`
}

// Decision is the single resolution outcome for one request. Every reply sent
// to a user corresponds to exactly one Decision.
type Decision struct {
	Intent       Intent
	Confidence   float64
	Tier         Tier
	FunctionCall *FunctionCall
	Reply        string
	ProductIDs   []string
	Reason       string
}

// Validate checks the decision's internal invariants before it leaves the
// pipeline.
func (d Decision) Validate() error {
	if !d.Intent.Valid() {
		return fmt.Errorf("intent %q outside the closed set", d.Intent)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	switch d.Tier {
	case TierCache, TierRule, TierRetrieval, TierModel, TierRefusal:
	default:
		return fmt.Errorf("unknown tier %q", d.Tier)
	}
	return nil
}
