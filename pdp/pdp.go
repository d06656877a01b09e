// Package pdp implements the Policy Decision Point: it fetches a policy
// through the PAP, evaluates its grant/deny expression trees, resolves
// obligations and validity windows, and renders a decision.
package pdp

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"accessd/core/events"
	"accessd/crypto"
	"accessd/jsonview"
	"accessd/observability/logging"
	"accessd/observability/metrics"
	"accessd/pap"
	"accessd/pip"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEmitter attaches an audit-event sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithMetrics attaches a Prometheus metrics registry.
func WithMetrics(m *metrics.AccessMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxTokens bounds tokenization of requests and stored policy objects.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMaxDepth bounds recursive tree evaluation.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// Engine is the PDP: a single mutex guarding its sole public operation. The
// lock is held while it calls into the PAP (which takes its own mutex in
// turn) and the PIP; the PAP never calls back into the PDP, so this
// ordering can never deadlock.
type Engine struct {
	mu sync.Mutex

	pap *pap.Engine
	pip pip.Resolver

	logger    *slog.Logger
	emitter   events.Emitter
	metrics   *metrics.AccessMetrics
	maxTokens int
	maxDepth  int
}

// New constructs a PDP Engine bound to pap for policy retrieval and pip for
// dynamic attribute resolution.
func New(papEngine *pap.Engine, pipResolver pip.Resolver, opts ...Option) *Engine {
	e := &Engine{
		pap:       papEngine,
		pip:       pipResolver,
		emitter:   events.NoopEmitter{},
		maxTokens: jsonview.DefaultMaxTokens,
		maxDepth:  defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DecisionEvent is emitted for every rendered decision, for audit trails.
type DecisionEvent struct {
	PolicyID string
	Code     int
}

// EventType implements events.Event.
func (DecisionEvent) EventType() string { return "pdp.decision_rendered" }

// Decide parses the request, fetches its policy, evaluates
// policy_goc/policy_doc, and resolves the obligation and validity window
// that apply to the resulting decision code.
func (e *Engine) Decide(ctx context.Context, requestBytes []byte) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.ObserveDecisionSeconds(time.Since(start).Seconds()) }()

	reqView, err := jsonview.TokenizeLimit(requestBytes, e.maxTokens)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: malformed request: %v", ErrDecisionFailed, err)
	}
	reqRoot := reqView.Root()

	idIdx, ok := reqView.FindKey(reqRoot, "policy_id")
	if !ok {
		return Decision{}, ErrNoPolicyID
	}
	idBytes, err := hex.DecodeString(string(reqView.Text(idIdx)))
	if err != nil || len(idBytes) != crypto.PolicyIDLen {
		return Decision{}, ErrNoPolicyID
	}
	var id [32]byte
	copy(id[:], idBytes)
	policyIDHex := hex.EncodeToString(id[:])

	rec, err := e.pap.GetPolicy(id)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
	}

	policyView, err := jsonview.TokenizeLimit(rec.ObjectBytes, e.maxTokens)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: stored policy unparseable: %v", ErrDecisionFailed, err)
	}
	policyRoot := policyView.Root()

	gocIdx, hasGoc := policyView.FindKey(policyRoot, "policy_goc")
	docIdx, hasDoc := policyView.FindKey(policyRoot, "policy_doc")
	if !hasGoc && !hasDoc {
		e.logGap(policyIDHex)
		e.recordDecision(policyIDHex, CodeGAP)
		return Decision{Code: CodeGAP}, nil
	}

	pctx := buildPolicyContext(reqView, reqRoot)
	e.logRequestContext(policyIDHex, pctx)
	ev := &evaluator{ctx: ctx, view: policyView, pctx: pctx, pip: e.pip, maxDepth: e.maxDepth}

	goc := hasGoc && ev.evalNode(gocIdx)
	doc := hasDoc && ev.evalNode(docIdx)
	code := boolToInt(goc) + 2*boolToInt(doc)

	decision := Decision{Code: code}
	switch code {
	case CodeGrant:
		if oblIdx, ok := policyView.FindKey(policyRoot, "obligation_grant"); ok {
			decision.Obligation = ev.resolveObligation(oblIdx)
		}
		if actionIdx, ok := findActionDeep(policyView, policyRoot); ok {
			decision.Action.Value = string(policyView.Text(actionIdx))
		}
		if hasGoc {
			window := &evaluator{ctx: ctx, view: policyView, pctx: pctx, pip: e.pip, maxDepth: e.maxDepth}
			window.extractWindow(gocIdx, "")
			decision.Action.StartTime = window.start
			decision.Action.StopTime = window.stop
		}
	case CodeDeny:
		if oblIdx, ok := policyView.FindKey(policyRoot, "obligation_deny"); ok {
			decision.Obligation = ev.resolveObligation(oblIdx)
		}
	}

	e.recordDecision(policyIDHex, code)
	return decision, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) logGap(policyID string) {
	if e.logger != nil {
		e.logger.Warn("decision gap: policy has neither policy_goc nor policy_doc", "policy_id", policyID)
	}
}

// logRequestContext logs the request's opaque fields at Debug, masking every
// value except policy_id — these fields are subject descriptors consulted
// only through the PIP (spec.md §6) and may carry identifying information
// that shouldn't land in a log line verbatim.
func (e *Engine) logRequestContext(policyID string, pctx *pip.PolicyContext) {
	if e.logger == nil || pctx == nil {
		return
	}
	for key, value := range pctx.RequestFields {
		if key == "policy_id" {
			continue
		}
		e.logger.Debug("request field", "policy_id", policyID, logging.MaskField(key, value))
	}
}

func (e *Engine) recordDecision(policyID string, code int) {
	if e.logger != nil {
		e.logger.Info("decision rendered", "policy_id", policyID, "code", code)
	}
	e.metrics.ObserveDecision(code)
	e.emitter.Emit(DecisionEvent{PolicyID: policyID, Code: code})
}
