package env

import (
	"sync"

	"github.com/gridforge/gridforge/internal/delta"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/zclconf/go-cty/cty"
)

// Store holds the registered key schemas and the transform registry for one
// project. It is append-only while the project loads, then read-only during
// evaluation — the same discipline the rest of the loader follows for the
// target registry.
type Store struct {
	mu         sync.RWMutex
	schemas    map[string]KeySchema
	transforms *delta.TransformRegistry
}

// NewStore returns an empty store with its own transform registry.
func NewStore() *Store {
	return NewStoreWithTransforms(delta.NewTransformRegistry())
}

// NewStoreWithTransforms returns an empty store backed by an
// already-populated transform registry — used to wire in the transforms a
// project's plugins registered during loading, before any target is
// evaluated against the store.
func NewStoreWithTransforms(transforms *delta.TransformRegistry) *Store {
	return &Store{
		schemas:    make(map[string]KeySchema),
		transforms: transforms,
	}
}

// Transforms returns the store's transform registry, so plugins can
// register named transform functions during loading.
func (s *Store) Transforms() *delta.TransformRegistry {
	return s.transforms
}

// RegisterKey registers a key schema. Re-registering the same name with an
// identical shape is a no-op; re-registering with a different shape fails
// with DuplicateKey.
func (s *Store) RegisterKey(schema KeySchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schemas[schema.Name]
	if !ok {
		s.schemas[schema.Name] = schema
		return nil
	}
	if existing.SameShape(schema) {
		return nil
	}
	return diag.New(diag.DuplicateKey, "environment key %q already registered with a different schema", schema.Name)
}

// Schema returns the schema registered for key, if any.
func (s *Store) Schema(key string) (KeySchema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schemas[key]
	return sch, ok
}

// MakeEmpty returns the empty environment.
func (s *Store) MakeEmpty() Env {
	return Empty()
}

// Lookup returns the value of key in e, falling back to the registered
// schema's default if e does not carry an explicit value. Looking up an
// unregistered key returns cty.NilVal.
func (s *Store) Lookup(e Env, key string) cty.Value {
	if v, ok := e.Raw(key); ok {
		return v
	}
	sch, ok := s.Schema(key)
	if !ok {
		return cty.NilVal
	}
	return sch.Default
}

// Apply produces a new environment with d applied to e, operation by
// operation, in order.
func (s *Store) Apply(e Env, d delta.Delta) (Env, error) {
	cur := e
	for _, op := range d {
		next, err := s.applyOp(cur, op)
		if err != nil {
			return Env{}, err
		}
		cur = next
	}
	return cur, nil
}

func (s *Store) applyOp(e Env, op delta.Op) (Env, error) {
	sch, ok := s.Schema(op.Key)
	if !ok {
		return Env{}, diag.New(diag.UnknownKey, "delta references unregistered environment key %q", op.Key)
	}

	switch op.Kind {
	case delta.Set:
		if err := sch.Validate(op.Value); err != nil {
			return Env{}, diag.Wrap(diag.TypeMismatch, err, "set %s", op.Key)
		}
		return e.with(op.Key, op.Value), nil

	case delta.Append, delta.Prepend:
		if sch.Domain != StringList && sch.Domain != StringSet {
			return Env{}, diag.New(diag.TypeMismatch, "key %q is not a list or set; cannot %s", op.Key, op.Kind)
		}
		elemType := sch.CtyType().ElementType()
		if !op.Value.Type().Equals(elemType) {
			return Env{}, diag.New(diag.TypeMismatch, "key %q expects elements of type %s", op.Key, elemType.FriendlyName())
		}
		cur := elements(s.Lookup(e, op.Key))
		next := spliceElement(cur, op.Value, op.Kind, sch.Domain == StringSet)
		return e.with(op.Key, listOf(next)), nil

	case delta.Remove:
		if sch.Domain != StringSet {
			return Env{}, diag.New(diag.TypeMismatch, "key %q is not a set; cannot remove", op.Key)
		}
		cur := elements(s.Lookup(e, op.Key))
		next := make([]cty.Value, 0, len(cur))
		for _, v := range cur {
			if v.RawEquals(op.Value) {
				continue
			}
			next = append(next, v)
		}
		return e.with(op.Key, listOf(next)), nil

	case delta.Transform:
		fn, ok := s.transforms.Lookup(op.TransformName)
		if !ok {
			return Env{}, diag.New(diag.UnknownTransform, "delta names unregistered transform %q", op.TransformName)
		}
		cur := s.Lookup(e, op.Key)
		next, err := fn(cur)
		if err != nil {
			return Env{}, diag.Wrap(diag.TypeMismatch, err, "transform %s on key %s", op.TransformName, op.Key)
		}
		if err := sch.Validate(next); err != nil {
			return Env{}, diag.Wrap(diag.TypeMismatch, err, "transform %s on key %s produced an invalid value", op.TransformName, op.Key)
		}
		return e.with(op.Key, next), nil

	default:
		return Env{}, diag.New(diag.TypeMismatch, "unknown delta operation kind for key %q", op.Key)
	}
}

// spliceElement inserts v into cur per append/prepend semantics. For sets
// (dedupe == true), an existing element is repositioned rather than
// duplicated: append leaves it in its earlier position, prepend moves it to
// the front.
func spliceElement(cur []cty.Value, v cty.Value, kind delta.Kind, dedupe bool) []cty.Value {
	if dedupe {
		if kind == delta.Append {
			for _, e := range cur {
				if e.RawEquals(v) {
					return cur
				}
			}
		}
		filtered := make([]cty.Value, 0, len(cur))
		for _, e := range cur {
			if e.RawEquals(v) {
				continue
			}
			filtered = append(filtered, e)
		}
		cur = filtered
	}
	if kind == delta.Prepend {
		out := make([]cty.Value, 0, len(cur)+1)
		out = append(out, v)
		out = append(out, cur...)
		return out
	}
	out := make([]cty.Value, 0, len(cur)+1)
	out = append(out, cur...)
	out = append(out, v)
	return out
}

// Subset returns an environment containing only the listed keys, dropping
// everything else. Plugins use this to shed environment state they don't
// care about before producing a product — this is what makes the concrete
// build graph converge despite combinatorial parameterization upstream.
func (s *Store) Subset(e Env, keys []string) Env {
	return Subset(e, keys)
}

// Subset is the free-function form of Store.Subset. It needs no schema
// lookups — only explicitly-set keys are ever copied — so plugin code that
// only has an Env in hand (no Store reference) can narrow it directly.
func Subset(e Env, keys []string) Env {
	out := Empty()
	for _, k := range keys {
		if v, ok := e.Raw(k); ok {
			out = out.with(k, v)
		}
	}
	return out
}
