// internal/value/yaml.go
//
// YAML codec built on yaml.v3 nodes so scalars keep their source text.
//
// Decoding into interface{} would turn `0.123456789012345678` into a
// float64; decoding the node tree instead hands us the literal and its
// resolved tag (!!str, !!int, !!float, !!bool, !!null).
package value

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits a scalar node whose tag preserves the kind.  yaml.v3
// quotes string scalars that would otherwise resolve to another type.
func (v Value) MarshalYAML() (any, error) {
	return v.Node(), nil
}

// Node returns the yaml.v3 scalar node for v.
func (v Value) Node() *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch v.kind {
	case Null:
		n.Tag, n.Value = "!!null", "null"
	case Bool:
		n.Tag, n.Value = "!!bool", v.raw
	case Number:
		n.Tag, n.Value = "!!float", v.raw
		if !strings.ContainsAny(v.raw, ".eE") {
			n.Tag = "!!int"
		}
	default:
		n.Tag, n.Value = "!!str", v.raw
	}
	return n
}

// UnmarshalYAML decodes one scalar node.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	out, err := FromNode(n)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// FromNode converts a yaml.v3 scalar node into a Value.  Aliases are
// followed.  YAML-only number spellings (0x1F, 1_000, .inf) are not JSON
// numbers; they are kept as strings with their literal text.
func FromNode(n *yaml.Node) (Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return Value{}, fmt.Errorf("%w: line %d", ErrNotScalar, n.Line)
	}
	switch n.ShortTag() {
	case "!!null":
		return NullValue(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, err
		}
		return Boolean(b), nil
	case "!!int", "!!float":
		if IsNumberLiteral(n.Value) {
			return Value{kind: Number, raw: n.Value}, nil
		}
		return Str(n.Value), nil
	default:
		return Str(n.Value), nil
	}
}

// MapFromNode converts a mapping node of scalars into a Map.  A nil or
// null node yields an empty map.
func MapFromNode(n *yaml.Node) (Map, error) {
	out := Map{}
	if n == nil {
		return out, nil
	}
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return out, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("value: expected mapping at line %d", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		v, err := FromNode(n.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// MapNode renders m as a mapping node with sorted keys, so rewriting the
// same map always produces identical bytes.
func MapNode(m Map) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			m[k].Node(),
		)
	}
	return n
}
