package engine

import (
	"sort"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/resolve"
	"github.com/TimurManjosov/mockflow/internal/rules"
)

// ApplyEffects runs effects in order against mc, mutating mc.State and
// mc.Tables in place. It never persists anything.
func ApplyEffects(effects rules.Effects, mc *MatchContext) {
	for _, effect := range effects.Items {
		applyEffect(effect, mc)
	}
}

func applyEffect(effect rules.Effect, mc *MatchContext) {
	switch e := effect.(type) {
	case rules.StateSet:
		for _, k := range e.Keys() {
			assign(mc.State, k, interpolate(e.Raw[k], mc))
		}
	case rules.DBPush:
		mc.Tables[e.Table] = append(mc.Tables[e.Table], defined(interpolate(e.Value, mc)))
	case rules.DBUpdate:
		rows, ok := mc.Tables[e.Table]
		if !ok {
			return
		}
		for _, row := range rows {
			if !matchAll(row, e.Match, mc) {
				continue
			}
			obj, ok := row.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range e.SetKeys() {
				assign(obj, k, interpolate(e.Set[k], mc))
			}
		}
	case rules.DBRemove:
		rows, ok := mc.Tables[e.Table]
		if !ok {
			return
		}
		kept := make([]any, 0, len(rows))
		for _, row := range rows {
			if !matchAny(row, e.Match, mc) {
				kept = append(kept, row)
			}
		}
		mc.Tables[e.Table] = kept
	}
}

// matchAll is true when every pair matches; an empty match selects every row.
func matchAll(row any, match map[string]any, mc *MatchContext) bool {
	for _, k := range sortedKeys(match) {
		if !looseEqual(field(row, k), interpolate(match[k], mc)) {
			return false
		}
	}
	return true
}

// matchAny is true when at least one pair matches; an empty match selects nothing.
func matchAny(row any, match map[string]any, mc *MatchContext) bool {
	for _, k := range sortedKeys(match) {
		if looseEqual(field(row, k), interpolate(match[k], mc)) {
			return true
		}
	}
	return false
}

// assign stores v under k, or removes k when v is undefined so the key never
// reaches the persisted document.
func assign(obj map[string]any, k string, v any) {
	if _, ok := v.(undefinedValue); ok {
		delete(obj, k)
		return
	}
	obj[k] = v
}

// defined turns undefined into null for positions that are always serialized.
func defined(v any) any {
	if _, ok := v.(undefinedValue); ok {
		return nil
	}
	return v
}

func field(row any, key string) any {
	obj, ok := row.(map[string]any)
	if !ok {
		return undefined
	}
	v, ok := obj[key]
	if !ok {
		return undefined
	}
	return v
}

// interpolate substitutes a value that is entirely "{{path}}" with the
// resolved value itself, keeping its type. An unresolved path yields
// undefined: object keys holding it are dropped and array elements become
// null. Maps and slices are rebuilt element-wise.
func interpolate(value any, mc *MatchContext) any {
	switch v := value.(type) {
	case string:
		if len(v) < 4 || !strings.HasPrefix(v, "{{") || !strings.HasSuffix(v, "}}") {
			return v
		}
		path := strings.TrimSpace(v[2 : len(v)-2])
		resolved, ok := resolve.Context(path, mc.tree())
		if !ok {
			return undefined
		}
		return resolve.Clone(resolved)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			assign(out, k, interpolate(item, mc))
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = defined(interpolate(item, mc))
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
