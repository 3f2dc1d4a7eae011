package engine

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// undefinedValue marks a path that did not resolve. It is distinct from nil,
// which is an explicit JSON null.
type undefinedValue struct{}

var undefined any = undefinedValue{}

type valueKind int

const (
	kindUndefined valueKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindObject
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case undefinedValue:
		return kindUndefined
	case nil:
		return kindNull
	case bool:
		return kindBool
	case float64:
		return kindNumber
	case string:
		return kindString
	default:
		return kindObject
	}
}

// normalize folds Go numeric types onto float64 so that values built in code
// compare the same way as decoded JSON.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return n.String()
		}
		return f
	default:
		return v
	}
}

// looseEqual implements abstract equality: null and undefined are equal to
// each other only, numbers and strings compare numerically, booleans become
// numbers, and composites are reduced to a primitive unless both sides are
// composites, in which case identity decides.
func looseEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	ka, kb := kindOf(a), kindOf(b)

	if ka == kb {
		switch ka {
		case kindUndefined, kindNull:
			return true
		case kindObject:
			return sameReference(a, b)
		default:
			return a == b
		}
	}

	nullishA := ka == kindUndefined || ka == kindNull
	nullishB := kb == kindUndefined || kb == kindNull
	if nullishA || nullishB {
		return nullishA && nullishB
	}

	switch {
	case ka == kindNumber && kb == kindString:
		return a.(float64) == toNumber(b)
	case ka == kindString && kb == kindNumber:
		return toNumber(a) == b.(float64)
	case ka == kindBool:
		return looseEqual(toNumber(a), b)
	case kb == kindBool:
		return looseEqual(a, toNumber(b))
	case ka == kindObject:
		return looseEqual(toPrimitive(a), b)
	case kb == kindObject:
		return looseEqual(a, toPrimitive(b))
	}
	return false
}

// sameValueZero is strict equality except that NaN equals NaN.
func sameValueZero(a, b any) bool {
	a, b = normalize(a), normalize(b)
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case kindUndefined, kindNull:
		return true
	case kindNumber:
		x, y := a.(float64), b.(float64)
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case kindObject:
		return sameReference(a, b)
	default:
		return a == b
	}
}

func sameReference(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != vb.Kind() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return false
	}
}

// toNumber applies numeric coercion. Values with no numeric reading yield NaN.
func toNumber(v any) float64 {
	v = normalize(v)
	switch x := v.(type) {
	case undefinedValue:
		return math.NaN()
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		return parseNumber(x)
	default:
		return parseNumber(toPrimitive(v))
	}
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(s, "_") {
		return math.NaN()
	}
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		n, err := strconv.ParseInt(s[2:], prefixBase(lower[1]), 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func prefixBase(c byte) int {
	switch c {
	case 'x':
		return 16
	case 'o':
		return 8
	default:
		return 2
	}
}

// toPrimitive reduces a composite to its string form: arrays join their
// elements with commas, everything else is "[object Object]".
func toPrimitive(v any) string {
	if arr, ok := v.([]any); ok {
		parts := make([]string, len(arr))
		for i, item := range arr {
			switch kindOf(normalize(item)) {
			case kindNull, kindUndefined:
				parts[i] = ""
			default:
				parts[i] = jsString(item)
			}
		}
		return strings.Join(parts, ",")
	}
	return "[object Object]"
}

// jsString renders any value the way string interpolation would.
func jsString(v any) string {
	v = normalize(v)
	switch x := v.(type) {
	case undefinedValue:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case string:
		return x
	default:
		return toPrimitive(v)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits ("1e-07"); strip the padding.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
