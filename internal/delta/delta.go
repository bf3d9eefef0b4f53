// Package delta models environment transformations as inspectable data
// rather than host-language closures, so they can be serialized, dumped
// for diagnostics, and composed without being executed.
package delta

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Kind names the operation a single Op performs.
type Kind int

const (
	// Set replaces the key's value outright.
	Set Kind = iota
	// Append adds a value to the end of a list, or inserts it into a set
	// (an existing set element keeps its earlier position).
	Append
	// Prepend adds a value to the front of a list, or re-positions an
	// existing set element to the front.
	Prepend
	// Remove deletes a value from a set; a no-op if the value is absent.
	Remove
	// Transform looks up a named function in the project's transform
	// registry and applies it to the current value.
	Transform
)

func (k Kind) String() string {
	switch k {
	case Set:
		return "set"
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	case Remove:
		return "remove"
	case Transform:
		return "transform"
	default:
		return "unknown"
	}
}

// Op is a single tagged operation against one environment key.
type Op struct {
	Kind Kind
	Key  string

	// Value holds the operand for Set/Append/Prepend/Remove: the new value
	// for Set, the element or value to insert/remove otherwise.
	Value cty.Value

	// TransformName names the registered function for Kind == Transform.
	TransformName string
}

// Delta is a finite, ordered sequence of per-key operations. Deltas compose
// left-to-right and are values, not closures.
type Delta []Op

// String renders a delta in a form suitable for diagnostics, e.g.
// "[append c_flags cty.StringVal(\"-O2\"), set optimize cty.True]".
func (d Delta) String() string {
	parts := make([]string, len(d))
	for i, op := range d {
		switch op.Kind {
		case Transform:
			parts[i] = fmt.Sprintf("transform %s %s", op.Key, op.TransformName)
		default:
			parts[i] = fmt.Sprintf("%s %s %s", op.Kind, op.Key, renderValue(op.Value))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func renderValue(v cty.Value) string {
	if !v.IsKnown() || v.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%#v", v)
}

// Concat returns a new delta applying a then b, left to right. Concat is
// associative but deltas do not commute: Concat(a, Concat(b, c)) equals
// Concat(Concat(a, b), c), but a followed by b is not generally equal to b
// followed by a.
func Concat(deltas ...Delta) Delta {
	var out Delta
	for _, d := range deltas {
		out = append(out, d...)
	}
	return out
}

// TransformFunc is a named, registered function from an old key value to a
// new one, re-validated against the key's schema after it runs.
type TransformFunc func(cty.Value) (cty.Value, error)

// TransformRegistry is the per-project name -> function lookup used by
// Transform operations. Registration is append-only in spirit: a project
// registers its transforms once during loading and the registry is only
// ever read during evaluation.
type TransformRegistry struct {
	mu  sync.RWMutex
	fns map[string]TransformFunc
}

// NewTransformRegistry returns an empty registry.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{fns: make(map[string]TransformFunc)}
}

// Register adds a named transform. Registering the same name twice panics;
// unlike key schemas, there is no meaningful "identical re-registration" for
// a function value, so collisions are a programmer error in plugin code.
func (r *TransformRegistry) Register(name string, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; exists {
		panic(fmt.Sprintf("delta: transform %q already registered", name))
	}
	r.fns[name] = fn
}

// Lookup returns the named transform, if registered.
func (r *TransformRegistry) Lookup(name string) (TransformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}
