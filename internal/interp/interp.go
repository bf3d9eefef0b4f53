// Package interp implements the minimal `${key}` / `${key|filter}` string
// interpolation grammar spec.md §6 allows in non-structural configuration
// strings. It is deliberately not a general expression language: the
// teacher's own expression handling (internal/bggoexpr) walks full HCL
// syntax trees for traversals and function calls, but this module's
// interpolation surface is scoped down to bare key references and a small
// named-filter registry, evaluated against one already-resolved
// environment rather than against live HCL expressions.
package interp

import (
	"regexp"
	"strings"

	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:\|([A-Za-z_][A-Za-z0-9_]*))?\}`)

// Filter renders a value to its interpolated string form, optionally
// transforming it (e.g. upper-casing, joining a list).
type Filter func(cty.Value) (string, error)

// Filters is the named registry of filters available after the `|` in a
// placeholder.
type Filters map[string]Filter

// DefaultFilters returns the small built-in filter set SPEC_FULL.md names:
// upper, lower, and join (list values rendered space-separated).
func DefaultFilters() Filters {
	return Filters{
		"upper": func(v cty.Value) (string, error) { return strings.ToUpper(renderScalar(v)), nil },
		"lower": func(v cty.Value) (string, error) { return strings.ToLower(renderScalar(v)), nil },
		"join": func(v cty.Value) (string, error) {
			if v.IsNull() || !v.IsKnown() {
				return "", nil
			}
			if !v.CanIterateElements() {
				return renderScalar(v), nil
			}
			var parts []string
			for it := v.ElementIterator(); it.Next(); {
				_, elem := it.Element()
				parts = append(parts, renderScalar(elem))
			}
			return strings.Join(parts, " "), nil
		},
	}
}

func renderScalar(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return v.GoString()
	}
	return s.AsString()
}

// PlaceholderKeys returns the key name referenced by every `${key}` /
// `${key|filter}` placeholder in s, in order of first appearance,
// duplicates included. Callers that need the distinct set dedupe
// themselves.
func PlaceholderKeys(s string) []string {
	matches := placeholder.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ContainsPlaceholder reports whether s has any `${...}` interpolation
// syntax in it. Structural strings (target names, package paths, key
// names) must never contain one — callers use this to raise
// InterpolationInStructural immediately at the offending position.
func ContainsPlaceholder(s string) bool {
	return placeholder.MatchString(s)
}

// Expand resolves every `${key}` / `${key|filter}` placeholder in raw
// against local, using store to look up each key (falling back to its
// schema default, exactly like any other lookup). An unknown filter name
// is reported as DescriptionEvaluationError; a key with no registered
// schema as UnknownKey.
func Expand(raw string, local env.Env, store *env.Store, filters Filters) (string, error) {
	return expand(raw, filters, func(key string) (cty.Value, error) {
		if _, ok := store.Schema(key); !ok {
			return cty.NilVal, diag.New(diag.UnknownKey, "interpolation references unregistered environment key %q", key)
		}
		return store.Lookup(local, key), nil
	})
}

// ExpandLiteral resolves placeholders against an environment with no
// backing store, for callers (plugin generators) that only hold an
// already-narrowed env.Env and whose target declared every key it
// interpolates as Requires — so every lookup here is expected to be
// explicitly set. A key absent from e is reported as UnknownKey, same as
// Expand reports one absent from the store's schema set.
func ExpandLiteral(raw string, e env.Env, filters Filters) (string, error) {
	return expand(raw, filters, func(key string) (cty.Value, error) {
		v, ok := e.Raw(key)
		if !ok {
			return cty.NilVal, diag.New(diag.UnknownKey, "interpolation references key %q with no explicit value", key)
		}
		return v, nil
	})
}

func expand(raw string, filters Filters, lookup func(key string) (cty.Value, error)) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(raw, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := placeholder.FindStringSubmatch(match)
		key, filterName := groups[1], groups[2]

		v, err := lookup(key)
		if err != nil {
			firstErr = err
			return match
		}

		if filterName == "" {
			return renderScalar(v)
		}
		fn, ok := filters[filterName]
		if !ok {
			firstErr = diag.New(diag.DescriptionEvaluationError, "interpolation names unknown filter %q", filterName)
			return match
		}
		rendered, err := fn(v)
		if err != nil {
			firstErr = diag.Wrap(diag.DescriptionEvaluationError, err, "applying filter %q to key %q", filterName, key)
			return match
		}
		return rendered
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// CheckStructural raises InterpolationInStructural if s contains any
// placeholder syntax; fieldName names the offending configuration field for
// the diagnostic message.
func CheckStructural(fieldName, s string) error {
	if !ContainsPlaceholder(s) {
		return nil
	}
	return diag.New(diag.InterpolationInStructural, "%s must not contain interpolation, got %q", fieldName, s)
}
