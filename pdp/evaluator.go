package pdp

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"accessd/jsonview"
	"accessd/pip"
)

// defaultMaxDepth bounds recursive tree evaluation so an adversarial policy
// (a deeply nested attribute_list) cannot exhaust the call stack.
const defaultMaxDepth = 256

// evaluator walks a single policy's token view. It replaces the source's
// implicit global context (raw bytes + token array threaded through every
// evaluator function) with an explicit object.
type evaluator struct {
	ctx      context.Context
	view     *jsonview.View
	pctx     *pip.PolicyContext
	pip      pip.Resolver
	maxDepth int
	depth    int

	// populated by extractWindow
	start, stop uint64
}

// evalNode evaluates node as a boolean, dispatching on whether it carries an
// "operation" key (an operation node) or not (a leaf). Non-boolean leaves and
// any PIP error collapse the node to false, matching and/or's documented
// error policy generalized across every operator.
func (ev *evaluator) evalNode(idx int) bool {
	ev.depth++
	defer func() { ev.depth-- }()
	if ev.depth > ev.maxDepth {
		return false
	}

	opIdx, isOp := ev.view.FindKey(idx, "operation")
	if !isOp {
		return ev.evalLeafBool(idx)
	}
	op := strings.ToLower(string(ev.view.Text(opIdx)))
	listIdx, ok := ev.view.FindKey(idx, "attribute_list")
	if !ok {
		return false
	}

	switch op {
	case "and":
		for i := 0; i < ev.view.ArraySize(listIdx); i++ {
			child, _ := ev.view.ArrayMember(listIdx, i)
			if !ev.evalNode(child) {
				return false
			}
		}
		return true
	case "or":
		for i := 0; i < ev.view.ArraySize(listIdx); i++ {
			child, _ := ev.view.ArrayMember(listIdx, i)
			if ev.evalNode(child) {
				return true
			}
		}
		return false
	case "not":
		child, ok := ev.view.ArrayMember(listIdx, 0)
		if !ok {
			return false
		}
		return !ev.evalNode(child)
	case "eq":
		return ev.evalCompare(listIdx, cmpEq)
	case "lt":
		return ev.evalCompare(listIdx, cmpLt)
	case "leq":
		return ev.evalCompare(listIdx, cmpLeq)
	case "gt":
		return ev.evalCompare(listIdx, cmpGt)
	case "geq":
		return ev.evalCompare(listIdx, cmpGeq)
	default:
		// "if" belongs to obligation trees only; any other unrecognized
		// operator collapses to false.
		return false
	}
}

func (ev *evaluator) evalLeafBool(idx int) bool {
	typeIdx, ok := ev.view.FindKey(idx, "type")
	if !ok || !ev.view.IsFold(typeIdx, "boolean") {
		return false
	}
	valueIdx, ok := ev.view.FindKey(idx, "value")
	if !ok {
		return false
	}
	v := ev.view.Text(valueIdx)
	return len(v) >= 4 && strings.EqualFold(string(v), "true")
}

type compareKind int

const (
	cmpEq compareKind = iota
	cmpLt
	cmpLeq
	cmpGt
	cmpGeq
)

func (ev *evaluator) evalCompare(listIdx int, kind compareKind) bool {
	if ev.view.ArraySize(listIdx) < 2 {
		return false
	}
	aIdx, _ := ev.view.ArrayMember(listIdx, 0)
	bIdx, _ := ev.view.ArrayMember(listIdx, 1)

	aVal, aTyp, bVal, bTyp, err := ev.resolvePair(aIdx, bIdx)
	if err != nil {
		return false
	}
	if !strings.EqualFold(aTyp, bTyp) {
		return false
	}

	switch kind {
	case cmpEq:
		return len(aVal) == len(bVal) && strings.EqualFold(aVal, bVal)
	case cmpLt:
		return lessFold(aVal, bVal)
	case cmpLeq:
		return lessFold(aVal, bVal) || (len(aVal) == len(bVal) && strings.EqualFold(aVal, bVal))
	case cmpGt:
		return lessFold(bVal, aVal)
	case cmpGeq:
		return lessFold(bVal, aVal) || (len(aVal) == len(bVal) && strings.EqualFold(aVal, bVal))
	default:
		return false
	}
}

// lessFold implements length-then-lexicographic comparison: a shorter
// string always precedes a longer one; equal-length strings compare
// case-insensitively byte-wise.
func lessFold(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return strings.ToLower(a) < strings.ToLower(b)
}

// resolveLeaf resolves a single leaf's (value, type), returning mirror=true
// when the PIP signals a subject reference (return code -2) that must be
// copied from the sibling operand instead.
func (ev *evaluator) resolveLeaf(idx int) (value, typ string, mirror bool, err error) {
	typeIdx, ok := ev.view.FindKey(idx, "type")
	if !ok {
		return "", "", false, nil
	}
	typ = string(ev.view.Text(typeIdx))
	valueIdx, ok := ev.view.FindKey(idx, "value")
	if !ok {
		return "", "", false, nil
	}
	value = string(ev.view.Text(valueIdx))

	if strings.EqualFold(typ, "boolean") || strings.EqualFold(typ, "time") {
		return value, typ, false, nil
	}

	resolved, rtyp, perr := ev.pip.GetData(ev.ctx, ev.pctx, value)
	switch {
	case errors.Is(perr, pip.ErrLiteral):
		return value, typ, false, nil
	case errors.Is(perr, pip.ErrSubjectReference):
		return "", "", true, nil
	case perr != nil:
		return "", "", false, perr
	default:
		return resolved, rtyp, false, nil
	}
}

// resolvePair resolves both operands of a comparison, applying
// subject-reference mirroring between them.
func (ev *evaluator) resolvePair(aIdx, bIdx int) (aVal, aTyp, bVal, bTyp string, err error) {
	aVal, aTyp, aMirror, err := ev.resolveLeaf(aIdx)
	if err != nil {
		return "", "", "", "", err
	}
	bVal, bTyp, bMirror, err := ev.resolveLeaf(bIdx)
	if err != nil {
		return "", "", "", "", err
	}
	if aMirror {
		aVal, aTyp = bVal, bTyp
	}
	if bMirror {
		bVal, bTyp = aVal, aTyp
	}
	return aVal, aTyp, bVal, bTyp, nil
}

// extractWindow walks the tree a second time, updating ev.start/ev.stop
// whenever it encounters a "time" leaf, keyed by the operation enclosing
// it.
func (ev *evaluator) extractWindow(idx int, enclosingOp string) {
	opIdx, isOp := ev.view.FindKey(idx, "operation")
	if isOp {
		op := strings.ToLower(string(ev.view.Text(opIdx)))
		listIdx, ok := ev.view.FindKey(idx, "attribute_list")
		if !ok {
			return
		}
		for i := 0; i < ev.view.ArraySize(listIdx); i++ {
			child, _ := ev.view.ArrayMember(listIdx, i)
			ev.extractWindow(child, op)
		}
		return
	}

	typeIdx, ok := ev.view.FindKey(idx, "type")
	if !ok || !ev.view.IsFold(typeIdx, "time") {
		return
	}
	valueIdx, ok := ev.view.FindKey(idx, "value")
	if !ok {
		return
	}
	v, err := strconv.ParseUint(string(ev.view.Text(valueIdx)), 10, 64)
	if err != nil {
		return
	}
	switch enclosingOp {
	case "eq":
		ev.start, ev.stop = v, v
	case "leq":
		ev.stop = v
	case "geq":
		ev.start = v
	case "lt":
		if v > 0 {
			ev.stop = v - 1
		}
	case "gt":
		ev.start = v + 1
	}
}

// resolveObligation implements the obligation resolution rule: an "if"
// node evaluates its condition and descends into the matching branch; any
// other node is a leaf whose value is copied verbatim, truncated to
// ObligationLen.
func (ev *evaluator) resolveObligation(idx int) string {
	opIdx, isOp := ev.view.FindKey(idx, "operation")
	if isOp && ev.view.IsFold(opIdx, "if") {
		listIdx, ok := ev.view.FindKey(idx, "attribute_list")
		if !ok || ev.view.ArraySize(listIdx) < 3 {
			return ""
		}
		condIdx, _ := ev.view.ArrayMember(listIdx, 0)
		trueIdx, _ := ev.view.ArrayMember(listIdx, 1)
		falseIdx, _ := ev.view.ArrayMember(listIdx, 2)
		if ev.evalNode(condIdx) {
			return ev.resolveObligation(trueIdx)
		}
		return ev.resolveObligation(falseIdx)
	}

	valueIdx, ok := ev.view.FindKey(idx, "value")
	if !ok {
		return ""
	}
	v := string(ev.view.Text(valueIdx))
	if len(v) > ObligationLen {
		v = v[:ObligationLen]
	}
	return v
}

// findActionDeep searches the policy object for an "action" key anywhere
// beneath idx, in document order, standing in for the source's token-stream
// scan while using jsonview's structural queries instead of a byte-level
// scan.
func findActionDeep(view *jsonview.View, idx int) (int, bool) {
	switch view.Type(idx) {
	case jsonview.TokenObject:
		children := view.Children(idx)
		for i := 0; i+1 < len(children); i += 2 {
			if view.Is(children[i], "action") {
				return children[i+1], true
			}
			if v, ok := findActionDeep(view, children[i+1]); ok {
				return v, true
			}
		}
	case jsonview.TokenArray:
		for _, child := range view.Children(idx) {
			if v, ok := findActionDeep(view, child); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// buildPolicyContext exposes the request's top-level fields to the PIP;
// extra fields are opaque to the PDP and consulted only through the PIP.
func buildPolicyContext(view *jsonview.View, root int) *pip.PolicyContext {
	fields := make(map[string]string)
	children := view.Children(root)
	for i := 0; i+1 < len(children); i += 2 {
		keyIdx, valIdx := children[i], children[i+1]
		fields[string(view.Text(keyIdx))] = string(view.Text(valIdx))
	}
	return &pip.PolicyContext{RequestFields: fields}
}
