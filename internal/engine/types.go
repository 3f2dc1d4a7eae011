package engine

// Input is the read-only request view exposed to templates as input.*.
type Input struct {
	Body    any               `json:"body"`
	Query   map[string]string `json:"query"`
	Params  map[string]string `json:"params"`
	Headers map[string]string `json:"headers"`
}

// MatchContext is the live working set for one request. State and Tables are
// the only parts that persist between requests.
type MatchContext struct {
	Input  Input
	State  map[string]any
	Tables map[string][]any
}

// NewMatchContext builds a context, allocating any nil maps.
func NewMatchContext(input Input, state map[string]any, tables map[string][]any) *MatchContext {
	if input.Query == nil {
		input.Query = map[string]string{}
	}
	if input.Params == nil {
		input.Params = map[string]string{}
	}
	if input.Headers == nil {
		input.Headers = map[string]string{}
	}
	if state == nil {
		state = map[string]any{}
	}
	if tables == nil {
		tables = map[string][]any{}
	}
	return &MatchContext{Input: input, State: state, Tables: tables}
}

// tree exposes the context as a JSON-like value for path resolution. It is
// rebuilt on every call so it always reflects the latest mutations.
func (c *MatchContext) tree() map[string]any {
	tables := make(map[string]any, len(c.Tables))
	for name, rows := range c.Tables {
		tables[name] = rows
	}
	return map[string]any{
		"input": map[string]any{
			"body":    c.Input.Body,
			"query":   stringMap(c.Input.Query),
			"params":  stringMap(c.Input.Params),
			"headers": stringMap(c.Input.Headers),
		},
		"state":  c.State,
		"tables": tables,
	}
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
