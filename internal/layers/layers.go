// internal/layers/layers.go
//
// Layer stack and flat-key merge with provenance.
//
// Context
// -------
// A resolution is five named layers merged lowest to highest:
//
//	defaults(1) → compose(2) → infrastructure(3) → capabilities(4) → overrides(5)
//
// For each key the last layer that defines it wins.  Values pass through
// untouched; there is no deep merge and no coercion.  The result records,
// per key, the name of the deciding layer.
//
// A layer that is absent (e.g. no discovery for docker targets) is simply
// not in the stack.  A layer that is present but empty contributes nothing.
//
// Notes
// -----
//   - Merge is pure.  Identical stacks yield identical Resolved values.
//   - Priorities are distinct by construction; NewStack rejects duplicates.
package layers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ushadow-io/ushadow/internal/value"
)

// Name identifies a layer in provenance output.
type Name string

const (
	Defaults       Name = "defaults"
	Compose        Name = "compose"
	Infrastructure Name = "infrastructure"
	Capabilities   Name = "capabilities"
	Overrides      Name = "overrides"
)

// Priority returns the fixed precedence of a well-known layer name, or 0.
func (n Name) Priority() int {
	switch n {
	case Defaults:
		return 1
	case Compose:
		return 2
	case Infrastructure:
		return 3
	case Capabilities:
		return 4
	case Overrides:
		return 5
	}
	return 0
}

// ErrDuplicatePriority is returned when two layers share a priority.
var ErrDuplicatePriority = errors.New("layers: duplicate priority")

// Layer is one named source of values.
type Layer struct {
	Name     Name
	Priority int
	Values   value.Map
}

// New builds a layer at the fixed priority for name.
func New(name Name, vals value.Map) Layer {
	if vals == nil {
		vals = value.Map{}
	}
	return Layer{Name: name, Priority: name.Priority(), Values: vals}
}

// Stack is an ordered list of layers, lowest priority first.
type Stack struct {
	layers []Layer
}

// NewStack sorts ls by priority and rejects ties.
func NewStack(ls ...Layer) (Stack, error) {
	out := make([]Layer, len(ls))
	copy(out, ls)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	for i := 1; i < len(out); i++ {
		if out[i].Priority == out[i-1].Priority {
			return Stack{}, fmt.Errorf("%w: %s and %s at %d",
				ErrDuplicatePriority, out[i-1].Name, out[i].Name, out[i].Priority)
		}
	}
	return Stack{layers: out}, nil
}

// Layers returns the stack's layers, lowest priority first.
func (s Stack) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Has reports whether a layer with name is present.
func (s Stack) Has(name Name) bool {
	for _, l := range s.layers {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Resolved is the merge output.  It is never mutated after Merge returns.
type Resolved struct {
	Values     value.Map
	Provenance map[string]Name
}

// Merge applies flat key override, last layer wins.
func Merge(s Stack) Resolved {
	r := Resolved{
		Values:     value.Map{},
		Provenance: map[string]Name{},
	}
	for _, l := range s.layers {
		for k, v := range l.Values {
			r.Values[k] = v
			r.Provenance[k] = l.Name
		}
	}
	return r
}

// Env renders the resolved values as environment variables.  Null values
// mask lower layers but are not exported.
func (r Resolved) Env() map[string]string {
	out := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		if v.IsNull() {
			continue
		}
		out[k] = v.String()
	}
	return out
}

// Sources returns provenance as plain strings for serialization.
func (r Resolved) Sources() map[string]string {
	out := make(map[string]string, len(r.Provenance))
	for k, n := range r.Provenance {
		out[k] = string(n)
	}
	return out
}
