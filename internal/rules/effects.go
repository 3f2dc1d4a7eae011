package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EffectKind discriminates the Effect sum type.
type EffectKind string

const (
	KindStateSet EffectKind = "state.set"
	KindDBPush   EffectKind = "db.push"
	KindDBUpdate EffectKind = "db.update"
	KindDBRemove EffectKind = "db.remove"
	KindUnknown  EffectKind = "unknown"
)

const (
	legacyStateSet = "$state.set"
	legacyDBPrefix = "$db."
)

// Effect is a declarative mutation of scenario state. The set of
// implementations is closed: StateSet, DBPush, DBUpdate, DBRemove, Unknown.
type Effect interface {
	Kind() EffectKind
	record() map[string]any
}

// StateSet assigns every key of Raw into the scenario state. Order holds the
// authored key order; keys missing from it run afterwards, sorted.
type StateSet struct {
	Raw   map[string]any
	Order []string
}

// Keys returns the keys of Raw in application order.
func (e StateSet) Keys() []string {
	return orderedKeys(e.Raw, e.Order)
}

// DBPush appends Value to a table.
type DBPush struct {
	Table string
	Value any
}

// DBUpdate sets fields on every row matching all Match pairs. SetOrder holds
// the authored key order of Set.
type DBUpdate struct {
	Table    string
	Match    map[string]any
	Set      map[string]any
	SetOrder []string
}

// SetKeys returns the keys of Set in application order.
func (e DBUpdate) SetKeys() []string {
	return orderedKeys(e.Set, e.SetOrder)
}

// DBRemove drops every row matching any Match pair.
type DBRemove struct {
	Table string
	Match map[string]any
}

// Unknown carries an unrecognized effect through untouched; it is never executed.
type Unknown struct {
	Key   string
	Value any
}

func (StateSet) Kind() EffectKind { return KindStateSet }
func (DBPush) Kind() EffectKind   { return KindDBPush }
func (DBUpdate) Kind() EffectKind { return KindDBUpdate }
func (DBRemove) Kind() EffectKind { return KindDBRemove }
func (Unknown) Kind() EffectKind  { return KindUnknown }

func (e StateSet) record() map[string]any {
	return map[string]any{"type": string(KindStateSet), "raw": orderedObject{keys: e.Keys(), values: e.Raw}}
}

func (e DBPush) record() map[string]any {
	return map[string]any{"type": string(KindDBPush), "table": e.Table, "value": e.Value}
}

func (e DBUpdate) record() map[string]any {
	return map[string]any{"type": string(KindDBUpdate), "table": e.Table, "match": orEmpty(e.Match), "set": orderedObject{keys: e.SetKeys(), values: e.Set}}
}

func (e DBRemove) record() map[string]any {
	return map[string]any{"type": string(KindDBRemove), "table": e.Table, "match": orEmpty(e.Match)}
}

func (e Unknown) record() map[string]any {
	if m, ok := e.Value.(map[string]any); ok {
		return m
	}
	return map[string]any{"type": e.Key, "value": e.Value}
}

// legacyEntry is one "$ns.rest" key of the legacy map syntax, in document order.
type legacyEntry struct {
	Key   string
	Value any
	order keyOrder
}

// Effects is the ordered effect list of a transition. It decodes from either
// the canonical array of {type, ...} records or the legacy "$"-keyed map and
// normalizes both into Items. The authored form is kept for re-encoding.
type Effects struct {
	Items  []Effect
	form   Form
	legacy []legacyEntry
}

// EffectList builds canonical-form effects.
func EffectList(items ...Effect) Effects {
	return Effects{Items: items, form: FormList}
}

// Form reports the authored syntax.
func (e Effects) Form() Form {
	return e.form
}

// Len returns the number of normalized effects.
func (e Effects) Len() int {
	return len(e.Items)
}

// UnmarshalJSON accepts an array, a legacy map, or null.
func (e *Effects) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*e = Effects{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEffect, err)
		}
		e.Items = make([]Effect, 0, len(records))
		for _, rec := range records {
			var raw any
			if err := json.Unmarshal(rec, &raw); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidEffect, err)
			}
			e.Items = append(e.Items, normalizeRecord(raw, jsonKeyOrder(rec)))
		}
		e.form = FormList
	case '{':
		entries, err := decodeOrderedObject(trimmed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEffect, err)
		}
		e.legacy = entries
		e.Items = normalizeLegacy(entries)
		e.form = FormMap
	default:
		return fmt.Errorf("%w: effects must be an array or an object", ErrInvalidEffect)
	}
	return nil
}

// MarshalJSON re-encodes the effects in their authored syntax.
func (e Effects) MarshalJSON() ([]byte, error) {
	if e.form != FormMap {
		return json.Marshal(e.records())
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range e.legacy {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.legacyValue(i))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML mirrors UnmarshalJSON; legacy keys keep their document order.
func (e *Effects) UnmarshalYAML(node *yaml.Node) error {
	*e = Effects{}
	switch node.Kind {
	case yaml.SequenceNode:
		e.Items = make([]Effect, 0, len(node.Content))
		for _, child := range node.Content {
			var raw any
			if err := child.Decode(&raw); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidEffect, err)
			}
			e.Items = append(e.Items, normalizeRecord(raw, yamlKeyOrder(child)))
		}
		e.form = FormList
	case yaml.MappingNode:
		entries := make([]legacyEntry, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var value any
			if err := node.Content[i+1].Decode(&value); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidEffect, err)
			}
			entries = append(entries, legacyEntry{
				Key:   node.Content[i].Value,
				Value: value,
				order: yamlKeyOrder(node.Content[i+1]),
			})
		}
		e.legacy = entries
		e.Items = normalizeLegacy(entries)
		e.form = FormMap
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("%w: effects must be a sequence or a mapping", ErrInvalidEffect)
		}
	default:
		return fmt.Errorf("%w: effects must be a sequence or a mapping", ErrInvalidEffect)
	}
	return nil
}

// MarshalYAML re-encodes the effects in their authored syntax.
func (e Effects) MarshalYAML() (any, error) {
	if e.form != FormMap {
		return e.records(), nil
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	for i, entry := range e.legacy {
		value := &yaml.Node{}
		if err := value.Encode(e.legacyValue(i)); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: entry.Key}, value)
	}
	return node, nil
}

func (e Effects) records() []map[string]any {
	out := make([]map[string]any, 0, len(e.Items))
	for _, item := range e.Items {
		out = append(out, item.record())
	}
	return out
}

// effectRecord is the canonical {type, ...} shape.
type effectRecord struct {
	Type  string         `mapstructure:"type"`
	Raw   map[string]any `mapstructure:"raw"`
	Table string         `mapstructure:"table"`
	Value any            `mapstructure:"value"`
	Match map[string]any `mapstructure:"match"`
	Set   map[string]any `mapstructure:"set"`
}

func normalizeRecord(raw any, order keyOrder) Effect {
	m, ok := raw.(map[string]any)
	if !ok {
		return Unknown{Value: raw}
	}
	var rec effectRecord
	if err := mapstructure.Decode(m, &rec); err != nil {
		typ, _ := m["type"].(string)
		return Unknown{Key: typ, Value: m}
	}

	switch EffectKind(rec.Type) {
	case KindStateSet:
		return StateSet{Raw: rec.Raw, Order: order.keys("raw")}
	case KindDBPush:
		return DBPush{Table: rec.Table, Value: rec.Value}
	case KindDBUpdate:
		return DBUpdate{Table: rec.Table, Match: rec.Match, Set: rec.Set, SetOrder: order.keys("set")}
	case KindDBRemove:
		return DBRemove{Table: rec.Table, Match: rec.Match}
	default:
		return Unknown{Key: rec.Type, Value: m}
	}
}

func normalizeLegacy(entries []legacyEntry) []Effect {
	items := make([]Effect, 0, len(entries))
	for _, entry := range entries {
		items = append(items, normalizeLegacyEntry(entry))
	}
	return items
}

// normalizeLegacyEntry converts "$state.set" and "$db.<table>.<op>" keys.
func normalizeLegacyEntry(entry legacyEntry) Effect {
	unknown := Unknown{Key: entry.Key, Value: entry.Value}

	if entry.Key == legacyStateSet {
		raw, ok := entry.Value.(map[string]any)
		if !ok {
			return unknown
		}
		return StateSet{Raw: raw, Order: entry.order.keys()}
	}

	if !strings.HasPrefix(entry.Key, legacyDBPrefix) {
		return unknown
	}
	rest := strings.TrimPrefix(entry.Key, legacyDBPrefix)
	dot := strings.LastIndex(rest, ".")
	if dot <= 0 {
		return unknown
	}
	table, op := rest[:dot], rest[dot+1:]

	switch op {
	case "push":
		return DBPush{Table: table, Value: entry.Value}
	case "update":
		body, ok := entry.Value.(map[string]any)
		if !ok {
			return unknown
		}
		match, _ := body["match"].(map[string]any)
		set, _ := body["set"].(map[string]any)
		return DBUpdate{Table: table, Match: match, Set: set, SetOrder: entry.order.keys("set")}
	case "remove":
		body, ok := entry.Value.(map[string]any)
		if !ok {
			return unknown
		}
		if match, ok := body["match"].(map[string]any); ok {
			return DBRemove{Table: table, Match: match}
		}
		return DBRemove{Table: table, Match: body}
	default:
		return unknown
	}
}

// decodeOrderedObject reads a JSON object keeping key order.
func decodeOrderedObject(data []byte) ([]legacyEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var entries []legacyEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		entries = append(entries, legacyEntry{Key: key, Value: value, order: jsonKeyOrder(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// legacyValue is the value of legacy entry i with the authored key order of
// its state.set object or update set restored.
func (e Effects) legacyValue(i int) any {
	entry := e.legacy[i]
	if i >= len(e.Items) {
		return entry.Value
	}
	switch item := e.Items[i].(type) {
	case StateSet:
		return orderedObject{keys: item.Keys(), values: item.Raw}
	case DBUpdate:
		body, ok := entry.Value.(map[string]any)
		if !ok || body["set"] == nil {
			return entry.Value
		}
		out := make(map[string]any, len(body))
		for k, v := range body {
			out[k] = v
		}
		out["set"] = orderedObject{keys: item.SetKeys(), values: item.Set}
		return out
	}
	return entry.Value
}

// keyOrder reports the authored key order of the object found by following
// path into one decoded document. It returns nil when the path is not an
// object.
type keyOrder func(path ...string) []string

func (o keyOrder) keys(path ...string) []string {
	if o == nil {
		return nil
	}
	return o(path...)
}

func jsonKeyOrder(data []byte) keyOrder {
	return func(path ...string) []string {
		cur := data
		for _, p := range path {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(cur, &obj); err != nil {
				return nil
			}
			next, ok := obj[p]
			if !ok {
				return nil
			}
			cur = next
		}
		if t := bytes.TrimSpace(cur); len(t) == 0 || t[0] != '{' {
			return nil
		}
		entries, err := decodeOrderedObject(cur)
		if err != nil {
			return nil
		}
		keys := make([]string, len(entries))
		for i, entry := range entries {
			keys[i] = entry.Key
		}
		return keys
	}
}

func yamlKeyOrder(node *yaml.Node) keyOrder {
	return func(path ...string) []string {
		cur := node
		for _, p := range path {
			cur = yamlChild(cur, p)
			if cur == nil {
				return nil
			}
		}
		if cur.Kind == yaml.AliasNode {
			cur = cur.Alias
		}
		if cur == nil || cur.Kind != yaml.MappingNode {
			return nil
		}
		keys := make([]string, 0, len(cur.Content)/2)
		for i := 0; i+1 < len(cur.Content); i += 2 {
			keys = append(keys, cur.Content[i].Value)
		}
		return keys
	}
}

func yamlChild(node *yaml.Node, key string) *yaml.Node {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// orderedKeys lists the keys of m that appear in order first, then the rest
// sorted.
func orderedKeys(m map[string]any, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// orderedObject encodes values with its keys in the given order.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o orderedObject) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range o.keys {
		value := &yaml.Node{}
		if err := value.Encode(o.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, value)
	}
	return node, nil
}
