// Package pipeline orchestrates a request through the tiers: reply cache,
// rule router, semantic retrieval, and the model gateway, under the cost
// governor. It is the only package that knows about all of them; the tiers
// themselves meet only in the shared intent types.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tansu/yanit/internal/audit"
	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/feature"
	"github.com/tansu/yanit/internal/gateway"
	"github.com/tansu/yanit/internal/intent"
	"github.com/tansu/yanit/internal/reply"
	"github.com/tansu/yanit/internal/replycache"
	"github.com/tansu/yanit/internal/retrieval"
	"github.com/tansu/yanit/internal/rules"
	"github.com/tansu/yanit/internal/session"
	"github.com/tansu/yanit/internal/textnorm"
)

const (
	// DefaultTauHigh is the retrieval confidence above which the model is
	// skipped entirely.
	DefaultTauHigh = 0.80
	// DefaultTauLow is the retrieval confidence below which the model is
	// required when the budget allows it.
	DefaultTauLow = 0.50

	// DefaultTopK bounds how many products one reply may present.
	DefaultTopK = 5

	// maxInputRunes caps accepted utterance length. Longer payloads get a
	// clarification, not an error.
	maxInputRunes = 500
)

// ModelGateway is what the pipeline needs from tier 3. *gateway.Client
// implements it; tests use fakes.
type ModelGateway interface {
	Resolve(ctx context.Context, req gateway.Request) (*gateway.Response, error)
	Open() bool
}

// Request is one inbound utterance.
type Request struct {
	Tenant         string
	ConversationID string
	Text           string
}

// ProductSummary is the product shape exposed on the wire.
type ProductSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	FinalPrice float64 `json:"final_price"`
}

// Result is the resolved reply plus everything the caller reports.
type Result struct {
	Reply      string           `json:"reply"`
	Intent     intent.Intent    `json:"intent"`
	Confidence float64          `json:"confidence"`
	Tier       intent.Tier      `json:"tier"`
	Products   []ProductSummary `json:"products"`
	Reason     string           `json:"reason"`
	LatencyMS  int64            `json:"latency_ms"`
}

// Options tune the pipeline.
type Options struct {
	TauHigh float64
	TauLow  float64
	TopK    int
	Logger  *slog.Logger
	Now     func() time.Time
}

// Pipeline wires the tiers together for one tenant catalog.
type Pipeline struct {
	index     *catalog.Index
	router    *rules.Router
	retriever *retrieval.Retriever
	cache     *replycache.Cache
	model     ModelGateway
	governor  *budget.Governor
	sessions  session.Store
	composer  *reply.Composer
	auditor   *audit.Auditor

	tauHigh float64
	tauLow  float64
	topK    int
	logger  *slog.Logger
	now     func() time.Time
}

// New assembles a Pipeline. model may be nil (tier 3 disabled); auditor may
// be nil.
func New(index *catalog.Index, router *rules.Router, retriever *retrieval.Retriever,
	cache *replycache.Cache, model ModelGateway, governor *budget.Governor,
	sessions session.Store, composer *reply.Composer, auditor *audit.Auditor,
	opts Options) *Pipeline {
	if opts.TauHigh <= 0 {
		opts.TauHigh = DefaultTauHigh
	}
	if opts.TauLow <= 0 {
		opts.TauLow = DefaultTauLow
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		index:     index,
		router:    router,
		retriever: retriever,
		cache:     cache,
		model:     model,
		governor:  governor,
		sessions:  sessions,
		composer:  composer,
		auditor:   auditor,
		tauHigh:   opts.TauHigh,
		tauLow:    opts.TauLow,
		topK:      opts.TopK,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// callStats accumulates the token spend of a tier-3 call so the audit
// record reflects what was actually paid. Single-flight waiters that share a
// decision paid nothing and report zeros.
type callStats struct {
	tokensIn    int
	tokensOut   int
	modelCalled bool
}

// Resolve runs one utterance through the tiers and returns the reply. It
// never returns a raw backend error: every failure path maps onto a
// user-visible decision.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	stats := &callStats{}

	u := textnorm.Normalize(req.Text)
	if utf8.RuneCountInString(req.Text) > maxInputRunes {
		d := intent.Decision{
			Intent:     intent.ClarificationNeeded,
			Confidence: 1,
			Tier:       intent.TierRule,
			Reply:      p.composer.Clarification(),
			Reason:     "input: oversize payload",
		}
		return p.finish(ctx, req, u, d, nil, stats, start)
	}

	sess, err := p.loadSession(ctx, req)
	if err != nil {
		p.logger.Error("loading session", "conversation", req.ConversationID, "error", err)
		sess = &session.Session{ConversationID: req.ConversationID, Tenant: req.Tenant}
	}
	feats := feature.Extract(u.Text)

	// A topic change invalidates the referent before routing sees it.
	if g, ok := feats.First(feature.GarmentType); ok {
		if sess.DropReferentOnTopicChange(g.Canonical) {
			p.logger.Debug("referent dropped on topic change",
				"conversation", req.ConversationID, "garment", g.Canonical)
		}
	}
	view := rules.SessionView{
		PriorTurns:      len(sess.Turns),
		RecentSatisfied: sess.RecentSatisfied(),
		LastProductName: sess.LastProductName,
	}

	var d intent.Decision
	if p.contextFree(view) {
		key := replycache.Fingerprint(req.Tenant, p.index.Version(), u.Text)
		cached, hit, rerr := p.cache.Resolve(ctx, req.Tenant, key, func() (intent.Decision, error) {
			return p.route(ctx, u, feats, view, sess, stats)
		})
		if rerr != nil {
			p.logger.Error("resolving", "tenant", req.Tenant, "error", rerr)
			d = p.internalFailure()
		} else {
			d = cached
			if hit {
				d.Tier = intent.TierCache
				d.Reason = "cache: " + d.Reason
			}
		}
	} else {
		// Contextual turns resolve against this conversation's state and
		// are never shared through the cache.
		var rerr error
		d, rerr = p.route(ctx, u, feats, view, sess, stats)
		if rerr != nil {
			p.logger.Error("resolving", "tenant", req.Tenant, "error", rerr)
			d = p.internalFailure()
		}
	}

	return p.finish(ctx, req, u, d, sess, stats, start)
}

// contextFree reports whether routing can ignore conversation state, which
// is what makes a decision shareable across conversations.
func (p *Pipeline) contextFree(view rules.SessionView) bool {
	return view.LastProductName == "" && !(view.PriorTurns >= 1 && view.RecentSatisfied)
}

// route runs the tier ladder below the cache.
func (p *Pipeline) route(ctx context.Context, u textnorm.Utterance, feats feature.Set,
	view rules.SessionView, sess *session.Session, stats *callStats) (intent.Decision, error) {
	d := p.router.Route(u, feats, view)

	switch {
	case d.Intent == intent.ProductInquiry && d.FunctionCall != nil && d.FunctionCall.ProductName != "":
		return p.answerReferent(d, sess), nil
	case d.Intent == intent.ProductInquiry:
		return p.retrieve(ctx, u, feats, d, sess, stats)
	case d.Intent == intent.NeedsModel:
		return p.consultModel(ctx, u, d, sess, nil, 0, stats), nil
	default:
		d.Reply = p.composeRule(d)
		return d, nil
	}
}

// composeRule renders the reply for a decision the rule router fully decided.
func (p *Pipeline) composeRule(d intent.Decision) string {
	switch d.Intent {
	case intent.Greeting:
		return p.composer.Greeting()
	case intent.Thanks:
		return p.composer.Thanks()
	case intent.Farewell:
		return p.composer.Farewell()
	case intent.Compliment:
		return p.composer.Compliment()
	case intent.Complaint:
		return p.composer.Complaint()
	case intent.HumanTransfer:
		return p.composer.HumanTransfer()
	case intent.BusinessInfo:
		if d.FunctionCall != nil {
			return p.composer.BusinessInfo(d.FunctionCall.InfoType)
		}
		return p.composer.BusinessInfo(intent.InfoPhone)
	case intent.ClarificationNeeded:
		// A bare price/stock query asks which product; anything else gets
		// the generic rephrase prompt.
		if d.FunctionCall != nil && d.FunctionCall.QueryType != "" {
			return p.composer.ClarifyWhichProduct(d.FunctionCall.QueryType)
		}
		return p.composer.Clarification()
	default:
		return p.composer.Clarification()
	}
}

// answerReferent handles a follow-up bound to the session's product.
func (p *Pipeline) answerReferent(d intent.Decision, sess *session.Session) intent.Decision {
	prod, ok := p.index.ByID(sess.LastProductID)
	if !ok {
		p.logger.Error("session referent missing from index",
			"tenant", p.index.Tenant(), "product", sess.LastProductID)
		return intent.Decision{
			Intent:     intent.ClarificationNeeded,
			Confidence: 0.9,
			Tier:       intent.TierRule,
			Reply:      p.composer.Clarification(),
			Reason:     "followup: referent no longer in catalog",
		}
	}
	d.Reply = p.answerFor(prod, d.FunctionCall.QueryType)
	d.ProductIDs = []string{prod.ID}
	return d
}

func (p *Pipeline) answerFor(prod catalog.Product, qt intent.QueryType) string {
	switch qt {
	case intent.QueryPrice:
		return p.composer.PriceAnswer(prod)
	case intent.QueryStock:
		return p.composer.StockAnswer(prod)
	default:
		return p.composer.Products([]catalog.Product{prod})
	}
}

// retrieve ranks the catalog and either answers at tier 2 or escalates.
func (p *Pipeline) retrieve(ctx context.Context, u textnorm.Utterance, feats feature.Set,
	d intent.Decision, sess *session.Session, stats *callStats) (intent.Decision, error) {
	results, err := p.retriever.Search(ctx, u.Text, feats, p.topK)
	if err != nil {
		return intent.Decision{}, fmt.Errorf("retrieving: %w", err)
	}
	conf := retrieval.Confidence(results)

	if conf >= p.tauHigh && len(results) > 0 {
		return p.composeRetrieval(d, results, conf, "retrieval: confidence above threshold"), nil
	}
	return p.consultModel(ctx, u, d, sess, results, conf, stats), nil
}

func (p *Pipeline) composeRetrieval(d intent.Decision, results []retrieval.Result,
	conf float64, reason string) intent.Decision {
	products := make([]catalog.Product, 0, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		products = append(products, r.Product)
		ids = append(ids, r.Product.ID)
	}

	var qt intent.QueryType
	if d.FunctionCall != nil {
		qt = d.FunctionCall.QueryType
	}
	var text string
	if len(products) == 1 && (qt == intent.QueryPrice || qt == intent.QueryStock) {
		text = p.answerFor(products[0], qt)
	} else {
		text = p.composer.Products(products)
	}

	return intent.Decision{
		Intent:       intent.ProductInquiry,
		Confidence:   conf,
		Tier:         intent.TierRetrieval,
		FunctionCall: d.FunctionCall,
		Reply:        text,
		ProductIDs:   ids,
		Reason:       reason,
	}
}

// consultModel runs the governor gate and the tier-3 call, falling back to
// the down-tier path on refusal, downgrade, open breaker, or call failure.
func (p *Pipeline) consultModel(ctx context.Context, u textnorm.Utterance, d intent.Decision,
	sess *session.Session, results []retrieval.Result, conf float64, stats *callStats) intent.Decision {
	tenant := p.index.Tenant()
	greq := gateway.Request{
		Tenant:         tenant,
		NormText:       u.Text,
		SessionSnippet: sessionSnippet(sess),
	}

	if p.model == nil {
		return p.downTier(d, results, conf, "model: gateway not configured")
	}

	switch p.governor.Admit(tenant, intent.TierModel, gateway.EstimateTokens(greq)) {
	case budget.Refuse:
		return intent.Decision{
			Intent:     intent.HumanTransfer,
			Confidence: 1,
			Tier:       intent.TierRefusal,
			Reply:      p.composer.BudgetRefusal(),
			Reason:     "budget: daily query cap reached",
		}
	case budget.Downgrade:
		return p.downTier(d, results, conf, "budget: daily budget exhausted, tier 3 skipped")
	}

	if p.model.Open() {
		return p.downTier(d, results, conf, "model: circuit open")
	}

	resp, err := p.model.Resolve(ctx, greq)
	if err != nil {
		var verr *gateway.ValidationError
		reason := "model: call failed"
		switch {
		case errors.As(err, &verr):
			reason = "model: schema validation failed"
		case errors.Is(err, gateway.ErrCircuitOpen):
			reason = "model: circuit open"
		}
		p.logger.Warn("model call failed", "tenant", tenant, "error", err)
		return p.downTier(d, results, conf, reason)
	}
	if resp == nil {
		p.logger.Warn("model returned an empty response", "tenant", tenant)
		return p.downTier(d, results, conf, "model: schema validation failed")
	}
	p.governor.Record(tenant, intent.TierModel, resp.TokensIn+resp.TokensOut)
	stats.modelCalled = true
	stats.tokensIn = resp.TokensIn
	stats.tokensOut = resp.TokensOut

	if resp.FunctionCall != nil {
		return p.executeCall(ctx, resp.FunctionCall)
	}
	return intent.Decision{
		Intent:     intent.NeedsModel,
		Confidence: 0.7,
		Tier:       intent.TierModel,
		Reply:      resp.Reply,
		Reason:     "model: direct reply",
	}
}

// executeCall turns a validated model function call into a reply.
func (p *Pipeline) executeCall(ctx context.Context, fc *intent.FunctionCall) intent.Decision {
	switch fc.Name {
	case "getGeneralInfo":
		return intent.Decision{
			Intent:       intent.BusinessInfo,
			Confidence:   0.9,
			Tier:         intent.TierModel,
			FunctionCall: fc,
			Reply:        p.composer.BusinessInfo(fc.InfoType),
			Reason:       fmt.Sprintf("model: getGeneralInfo %s", fc.InfoType),
		}
	case "getProductInfo":
		nameText := textnorm.Normalize(fc.ProductName).Text
		results, err := p.retriever.Search(ctx, nameText, feature.Extract(nameText), 1)
		if err != nil || len(results) == 0 {
			return intent.Decision{
				Intent:       intent.ProductInquiry,
				Confidence:   0.6,
				Tier:         intent.TierModel,
				FunctionCall: fc,
				Reply:        p.composer.NoProductsFound(),
				Reason:       fmt.Sprintf("model: getProductInfo %q matched nothing", fc.ProductName),
			}
		}
		prod := results[0].Product
		return intent.Decision{
			Intent:       intent.ProductInquiry,
			Confidence:   0.8,
			Tier:         intent.TierModel,
			FunctionCall: fc,
			Reply:        p.answerFor(prod, fc.QueryType),
			ProductIDs:   []string{prod.ID},
			Reason:       fmt.Sprintf("model: getProductInfo %s on %q", fc.QueryType, prod.Name),
		}
	default:
		return intent.Decision{
			Intent:     intent.ClarificationNeeded,
			Confidence: 0.9,
			Tier:       intent.TierModel,
			Reply:      p.composer.Clarification(),
			Reason:     fmt.Sprintf("model: unknown function %q", fc.Name),
		}
	}
}

// downTier answers without the model: a retrieval answer when candidates
// cleared the floor, otherwise a clarification at the refusal tier.
func (p *Pipeline) downTier(d intent.Decision, results []retrieval.Result,
	conf float64, reason string) intent.Decision {
	if len(results) > 0 && conf >= p.tauLow {
		return p.composeRetrieval(d, results, conf, reason)
	}
	return intent.Decision{
		Intent:     intent.ClarificationNeeded,
		Confidence: 1,
		Tier:       intent.TierRefusal,
		Reply:      p.composer.Clarification(),
		Reason:     reason,
	}
}

func (p *Pipeline) internalFailure() intent.Decision {
	return intent.Decision{
		Intent:     intent.ClarificationNeeded,
		Confidence: 1,
		Tier:       intent.TierRefusal,
		Reply:      p.composer.Clarification(),
		Reason:     "internal: resolution failed",
	}
}

// finish applies the post-decision bookkeeping shared by every path: the
// no-unknown check, session update, budget counter, and audit record.
func (p *Pipeline) finish(ctx context.Context, req Request, u textnorm.Utterance,
	d intent.Decision, sess *session.Session, stats *callStats, start time.Time) (*Result, error) {
	if err := d.Validate(); err != nil {
		p.logger.Error("decision failed validation", "tenant", req.Tenant, "error", err)
		d = p.internalFailure()
	}
	latency := p.now().Sub(start)

	if sess != nil {
		p.updateSession(ctx, req, u, d, sess)
	}
	// The request that made the tier-3 call recorded its spend, with its
	// token count, at call time. Everything else counts here, including
	// coalesced requests that share a model-tier decision without having
	// paid for it.
	if !stats.modelCalled {
		p.governor.Record(req.Tenant, d.Tier, 0)
	}
	if p.auditor != nil {
		p.auditor.Emit(ctx, audit.Record{
			Tenant:           req.Tenant,
			ConversationID:   req.ConversationID,
			NormText:         u.Text,
			Tier:             d.Tier,
			Intent:           d.Intent,
			Confidence:       d.Confidence,
			ProductIDs:       d.ProductIDs,
			PromptTokens:     stats.tokensIn,
			CompletionTokens: stats.tokensOut,
			Cost:             p.governor.Cost(stats.tokensIn + stats.tokensOut),
			Latency:          latency,
			Reason:           d.Reason,
		})
	}

	res := &Result{
		Reply:      d.Reply,
		Intent:     d.Intent,
		Confidence: d.Confidence,
		Tier:       d.Tier,
		Products:   p.summaries(d.ProductIDs),
		Reason:     d.Reason,
		LatencyMS:  latency.Milliseconds(),
	}
	return res, nil
}

func (p *Pipeline) summaries(ids []string) []ProductSummary {
	out := make([]ProductSummary, 0, len(ids))
	for _, id := range ids {
		if prod, ok := p.index.ByID(id); ok {
			out = append(out, ProductSummary{ID: prod.ID, Name: prod.Name, FinalPrice: prod.FinalPrice})
		}
	}
	return out
}

func (p *Pipeline) loadSession(ctx context.Context, req Request) (*session.Session, error) {
	if p.sessions == nil {
		return &session.Session{ConversationID: req.ConversationID, Tenant: req.Tenant}, nil
	}
	s, err := p.sessions.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &session.Session{ConversationID: req.ConversationID, Tenant: req.Tenant}
	}
	return s, nil
}

func (p *Pipeline) updateSession(ctx context.Context, req Request, u textnorm.Utterance,
	d intent.Decision, sess *session.Session) {
	sess.AddTurn(session.Turn{
		UserText:  u.Raw,
		Reply:     d.Reply,
		Intent:    string(d.Intent),
		Satisfied: rules.Satisfied(u),
		At:        p.now(),
	})
	sess.LastIntent = string(d.Intent)
	sess.PendingClarification = d.Intent == intent.ClarificationNeeded

	if len(d.ProductIDs) == 1 {
		if prod, ok := p.index.ByID(d.ProductIDs[0]); ok {
			garment := ""
			if g, ok := prod.Features.First(feature.GarmentType); ok {
				garment = g.Canonical
			}
			sess.SetReferent(prod.ID, prod.Name, garment)
		}
	}

	if p.sessions == nil {
		return
	}
	if err := p.sessions.Put(ctx, sess); err != nil {
		p.logger.Error("saving session", "conversation", req.ConversationID, "error", err)
	}
}

// sessionSnippet condenses recent turns for the model prompt.
func sessionSnippet(sess *session.Session) string {
	if sess == nil || len(sess.Turns) == 0 {
		return ""
	}
	turns := sess.Turns
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "Müşteri: %s | Yanıt: %s\n", t.UserText, t.Reply)
	}
	if sess.LastProductName != "" {
		fmt.Fprintf(&b, "Son konuşulan ürün: %s", sess.LastProductName)
	}
	return strings.TrimSpace(b.String())
}
