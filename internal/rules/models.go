package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Operator represents a comparison operator used in explicit conditions.
type Operator string

// Supported condition operators (string values for clean JSON serialization).
const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpExists   Operator = "exists"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpContains Operator = "contains"
)

// Condition is a single explicit guard predicate.
type Condition struct {
	Type  Operator `json:"type" yaml:"type"`
	Field string   `json:"field" yaml:"field"`
	Value any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Form records which surface syntax a rule set was authored in.
type Form int

const (
	FormNone Form = iota
	FormMap
	FormList
)

// Conditions is the guard of a transition. It is authored either as an object
// map {field: expected} (implicit loose eq, all must hold) or as an ordered
// list of explicit Conditions combined with AND semantics. Decoding keeps the
// authored form so re-encoding round-trips.
type Conditions struct {
	Fields map[string]any
	List   []Condition
	form   Form
}

// MapConditions builds a map-form guard.
func MapConditions(fields map[string]any) Conditions {
	return Conditions{Fields: fields, form: FormMap}
}

// ListConditions builds a list-form guard.
func ListConditions(list ...Condition) Conditions {
	return Conditions{List: list, form: FormList}
}

// Form reports the authored syntax.
func (c Conditions) Form() Form {
	return c.form
}

// Empty reports whether the guard has no predicates (always matches).
func (c Conditions) Empty() bool {
	return len(c.Fields) == 0 && len(c.List) == 0
}

// UnmarshalJSON accepts an object map, an array, or null.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*c = Conditions{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '{':
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		c.Fields = fields
		c.form = FormMap
	case '[':
		var list []Condition
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		c.List = list
		c.form = FormList
	default:
		return fmt.Errorf("%w: conditions must be an object or an array", ErrInvalidCondition)
	}
	return nil
}

// MarshalJSON re-encodes the guard in its authored syntax.
func (c Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.authored())
}

// UnmarshalYAML mirrors UnmarshalJSON for catalog files.
func (c *Conditions) UnmarshalYAML(node *yaml.Node) error {
	*c = Conditions{}
	switch node.Kind {
	case yaml.MappingNode:
		var fields map[string]any
		if err := node.Decode(&fields); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		c.Fields = fields
		c.form = FormMap
	case yaml.SequenceNode:
		var list []Condition
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		c.List = list
		c.form = FormList
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("%w: conditions must be a mapping or a sequence", ErrInvalidCondition)
		}
	default:
		return fmt.Errorf("%w: conditions must be a mapping or a sequence", ErrInvalidCondition)
	}
	return nil
}

// MarshalYAML re-encodes the guard in its authored syntax.
func (c Conditions) MarshalYAML() (any, error) {
	return c.authored(), nil
}

func (c Conditions) authored() any {
	switch c.form {
	case FormMap:
		if c.Fields == nil {
			return map[string]any{}
		}
		return c.Fields
	case FormList:
		if c.List == nil {
			return []Condition{}
		}
		return c.List
	default:
		return []Condition{}
	}
}
