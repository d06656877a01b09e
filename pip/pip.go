// Package pip defines the Policy Information Point contract the PDP
// resolves dynamic attribute references through, plus a map-backed
// reference implementation modeled on the plugin-manager shape of
// original_source/plugins/pip/modbus (a pluggable resolver keyed by
// attribute URL rather than a single hard-coded source).
package pip

import (
	"context"
	"errors"
)

// Resolution return codes: a resolver signals "treat this as a literal" or
// "mirror the sibling operand" through a sentinel error rather than a magic
// negative length, since Go errors are the idiomatic channel for
// out-of-band outcomes.
var (
	// ErrLiteral means the url was not a reference; callers keep the raw
	// leaf text.
	ErrLiteral = errors.New("pip: not a reference, use literal")
	// ErrSubjectReference means url names a subject attribute whose value
	// must be mirrored from the sibling operand, a historical quirk
	// preserved for compatibility.
	ErrSubjectReference = errors.New("pip: subject reference, mirror sibling operand")
)

// PolicyContext carries whatever the evaluating request supplies beyond the
// policy_id, keyed by field name — extra fields are opaque to the PDP and
// consulted only through the PIP.
type PolicyContext struct {
	RequestFields map[string]string
}

// Resolver resolves a dynamic attribute reference named by url. On success it
// returns the resolved value and its type tag. ErrLiteral and
// ErrSubjectReference are not failures; they are signaling outcomes reified
// as sentinel errors.
type Resolver interface {
	GetData(ctx context.Context, policyCtx *PolicyContext, url string) (value string, typ string, err error)
}

// Static is a map-backed Resolver for tests and local/offline operation,
// keyed by attribute URL.
type Static struct {
	values map[string]entry
}

type entry struct {
	value string
	typ   string
}

// NewStatic constructs an empty Static resolver.
func NewStatic() *Static {
	return &Static{values: make(map[string]entry)}
}

// Set registers a resolved value for url.
func (s *Static) Set(url, value, typ string) {
	s.values[url] = entry{value: value, typ: typ}
}

// GetData implements Resolver. Unknown urls are reported as literals rather
// than errors, so an un-configured Static behaves like "no PIP installed".
func (s *Static) GetData(_ context.Context, _ *PolicyContext, url string) (string, string, error) {
	if e, ok := s.values[url]; ok {
		return e.value, e.typ, nil
	}
	return "", "", ErrLiteral
}

// Chain tries each Resolver in order, returning the first one that doesn't
// answer ErrLiteral. This is operational surface the distillation dropped
// but that original_source/plugins/pluginmanager.h's multi-plugin dispatch
// implies: a deployment commonly layers more than one attribute source.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a Chain trying resolvers in the given order.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// GetData implements Resolver.
func (c *Chain) GetData(ctx context.Context, policyCtx *PolicyContext, url string) (string, string, error) {
	for _, r := range c.resolvers {
		value, typ, err := r.GetData(ctx, policyCtx, url)
		if errors.Is(err, ErrLiteral) {
			continue
		}
		return value, typ, err
	}
	return "", "", ErrLiteral
}
