package env

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Domain names the value domain a registered key may hold.
type Domain int

const (
	// StringList is an ordered list of strings; duplicates are preserved.
	StringList Domain = iota
	// StringSet is a set of strings with unique, insertion-preserving
	// order: appending an already-present element leaves it where it was;
	// prepending one moves it to the front.
	StringSet
	// Enum is a single string drawn from a fixed set of choices.
	Enum
	// String is a single, unrestricted string.
	String
	// Bool is a single boolean.
	Bool
	// Int is a single integer.
	Int
)

// KeySchema declares the domain, default value, and canonical form of one
// registered environment key.
type KeySchema struct {
	Name    string
	Domain  Domain
	Choices []string  // only meaningful for Enum
	Default cty.Value // must already conform to CtyType()

	// Normalize, if set, is applied only when computing a fingerprint
	// (e.g. to deduplicate adjacent equal list entries); it never affects
	// the stored value itself.
	Normalize func([]cty.Value) []cty.Value
}

// CtyType returns the cty.Type backing this domain. Lists and sets both
// use cty.List(cty.String): the distinction between them is entirely in
// delta-operation semantics (set operations deduplicate) and in canonical
// serialization order (sets sort, lists don't), not in storage shape.
func (s KeySchema) CtyType() cty.Type {
	switch s.Domain {
	case StringList, StringSet:
		return cty.List(cty.String)
	case Enum, String:
		return cty.String
	case Bool:
		return cty.Bool
	case Int:
		return cty.Number
	default:
		return cty.NilType
	}
}

// SameShape reports whether two schemas for the same key name describe an
// identical domain, i.e. whether re-registering is a no-op rather than a
// DuplicateKey conflict.
func (s KeySchema) SameShape(other KeySchema) bool {
	if s.Domain != other.Domain {
		return false
	}
	if s.Domain == Enum {
		if len(s.Choices) != len(other.Choices) {
			return false
		}
		for i := range s.Choices {
			if s.Choices[i] != other.Choices[i] {
				return false
			}
		}
	}
	if s.Default.IsKnown() != other.Default.IsKnown() {
		return false
	}
	return s.Default.RawEquals(other.Default)
}

// Validate checks that v conforms to the schema's domain.
func (s KeySchema) Validate(v cty.Value) error {
	want := s.CtyType()
	if !v.Type().Equals(want) {
		return fmt.Errorf("key %q expects type %s, got %s", s.Name, want.FriendlyName(), v.Type().FriendlyName())
	}
	if s.Domain == Enum {
		if v.IsNull() || !v.IsKnown() {
			return fmt.Errorf("key %q requires a known, non-null value", s.Name)
		}
		choice := v.AsString()
		for _, c := range s.Choices {
			if c == choice {
				return nil
			}
		}
		return fmt.Errorf("key %q: %q is not one of %v", s.Name, choice, s.Choices)
	}
	return nil
}

// elements returns the ordered string elements of a StringList/StringSet
// value, assuming it has already been validated.
func elements(v cty.Value) []cty.Value {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, val := it.Element()
		out = append(out, val)
	}
	return out
}

func listOf(elems []cty.Value) cty.Value {
	if len(elems) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	return cty.ListVal(elems)
}
