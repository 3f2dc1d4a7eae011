package engine

import (
	"regexp"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/resolve"
)

var (
	wholeTemplate    = regexp.MustCompile(`^\s*\{\{\s*([^}]+?)\s*\}\}\s*$`)
	embeddedTemplate = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)
)

// Render expands "{{ path }}" placeholders in a response template. A string
// holding a single placeholder that resolves to an object, an array or null
// yields that value unchanged; every other placeholder is replaced in-string
// with the value's string form, or "" when unresolved. The template itself is
// never modified.
func Render(template any, mc *MatchContext) any {
	if mc == nil {
		mc = NewMatchContext(Input{}, nil, nil)
	}
	return render(template, mc)
}

func render(template any, mc *MatchContext) any {
	switch t := template.(type) {
	case string:
		return renderString(t, mc)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = render(v, mc)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = render(v, mc)
		}
		return out
	default:
		return template
	}
}

func renderString(s string, mc *MatchContext) any {
	if !strings.Contains(s, "{{") {
		return s
	}
	tree := mc.tree()

	if m := wholeTemplate.FindStringSubmatch(s); m != nil {
		if v, ok := resolve.Context(strings.TrimSpace(m[1]), tree); ok {
			switch v.(type) {
			case nil, map[string]any, []any:
				return resolve.Clone(v)
			}
		}
	}

	return embeddedTemplate.ReplaceAllStringFunc(s, func(match string) string {
		sub := embeddedTemplate.FindStringSubmatch(match)
		v, ok := resolve.Context(strings.TrimSpace(sub[1]), tree)
		if !ok {
			return ""
		}
		return jsString(v)
	})
}

// RenderHeaders expands placeholders in header values. Headers are always
// strings, so composite values are stringified.
func RenderHeaders(headers map[string]string, mc *MatchContext) map[string]string {
	if mc == nil {
		mc = NewMatchContext(Input{}, nil, nil)
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		rendered := renderString(v, mc)
		if s, ok := rendered.(string); ok {
			out[k] = s
			continue
		}
		out[k] = jsString(rendered)
	}
	return out
}
