package env

import "github.com/zclconf/go-cty/cty"

// Env is an immutable mapping from registered key names to values. It is
// never mutated in place; every operation that "changes" an Env returns a
// new one. Only keys explicitly set are present in the map — looking up a
// key that has never been set falls back to its schema's default.
type Env struct {
	values map[string]cty.Value
}

// Empty returns the environment with no keys set.
func Empty() Env {
	return Env{}
}

// Has reports whether key has been explicitly set in e (as opposed to
// falling back to a schema default).
func (e Env) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Raw returns the value explicitly set for key, and whether one exists.
// Callers that need the schema default on absence should use Store.Lookup.
func (e Env) Raw(key string) (cty.Value, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Keys returns the set of explicitly-set key names, in no particular order.
func (e Env) Keys() []string {
	out := make([]string, 0, len(e.values))
	for k := range e.values {
		out = append(out, k)
	}
	return out
}

// with returns a copy of e with key set to v. Copy-on-write: the
// receiver's map is never mutated, so prior Envs derived from it remain
// valid.
func (e Env) with(key string, v cty.Value) Env {
	nv := make(map[string]cty.Value, len(e.values)+1)
	for k, val := range e.values {
		nv[k] = val
	}
	nv[key] = v
	return Env{values: nv}
}

// without returns a copy of e with key unset (falling back to its schema
// default on subsequent lookup).
func (e Env) without(key string) Env {
	if !e.Has(key) {
		return e
	}
	nv := make(map[string]cty.Value, len(e.values))
	for k, val := range e.values {
		if k == key {
			continue
		}
		nv[k] = val
	}
	return Env{values: nv}
}
