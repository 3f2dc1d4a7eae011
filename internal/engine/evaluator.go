package engine

import (
	"github.com/TimurManjosov/mockflow/internal/resolve"
	"github.com/TimurManjosov/mockflow/internal/rules"
)

// Matches reports whether a transition's guard passes for mc. An empty guard
// always passes. Map form requires every field to loosely equal its expected
// value; list form is an AND over its entries, stopping at the first failure.
func Matches(c rules.Conditions, mc *MatchContext) bool {
	if c.Empty() {
		return true
	}
	if mc == nil {
		mc = NewMatchContext(Input{}, nil, nil)
	}

	tree := mc.tree()
	for field, expected := range c.Fields {
		if !looseEqual(resolveOp(field, tree, mc), expected) {
			return false
		}
	}
	for _, cond := range c.List {
		if !evaluateCondition(cond, tree, mc) {
			return false
		}
	}
	return true
}

// EvaluateCondition evaluates a single list-form condition. Unknown operators
// never match.
func EvaluateCondition(cond rules.Condition, mc *MatchContext) bool {
	if mc == nil {
		mc = NewMatchContext(Input{}, nil, nil)
	}
	return evaluateCondition(cond, mc.tree(), mc)
}

func evaluateCondition(cond rules.Condition, tree map[string]any, mc *MatchContext) bool {
	handler, ok := getOperatorHandler(cond.Type)
	if !ok {
		return false
	}
	return handler.Check(resolveOp(cond.Field, tree, mc), cond.Value)
}

// resolveOp resolves field against the whole context (with the db. alias),
// falling back to the unaliased field under input.body so that "amount" can
// stand for "input.body.amount".
func resolveOp(field string, tree map[string]any, mc *MatchContext) any {
	if v, ok := resolve.Context(field, tree); ok {
		return v
	}
	if v, ok := resolve.Path(field, mc.Input.Body); ok {
		return v
	}
	return undefined
}
