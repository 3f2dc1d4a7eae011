package engine

import (
	"math"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

// OperatorHandler evaluates one condition operator. actual is the resolved
// field value, or the undefined marker when the path did not resolve.
type OperatorHandler interface {
	Check(actual, expected any) bool
}

var operatorHandlers = map[rules.Operator]OperatorHandler{
	rules.OpEq:       equalsHandler{},
	rules.OpNeq:      notEqualsHandler{},
	rules.OpExists:   existsHandler{},
	rules.OpGt:       numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	rules.OpLt:       numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	rules.OpContains: containsHandler{},
}

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	h, ok := operatorHandlers[op]
	return h, ok
}

type equalsHandler struct{}

func (equalsHandler) Check(actual, expected any) bool {
	return looseEqual(actual, expected)
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(actual, expected any) bool {
	return !looseEqual(actual, expected)
}

// existsHandler passes for anything but undefined and null.
type existsHandler struct{}

func (existsHandler) Check(actual, _ any) bool {
	switch kindOf(normalize(actual)) {
	case kindUndefined, kindNull:
		return false
	default:
		return true
	}
}

// numericCompareHandler coerces both sides to numbers. NaN fails every
// comparison.
type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(actual, expected any) bool {
	a, b := toNumber(actual), toNumber(expected)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return h.cmp(a, b)
}

// containsHandler tests array membership, or substring inclusion on the
// stringified value for everything else.
type containsHandler struct{}

func (containsHandler) Check(actual, expected any) bool {
	if arr, ok := actual.([]any); ok {
		for _, item := range arr {
			if sameValueZero(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(jsString(actual), jsString(expected))
}
